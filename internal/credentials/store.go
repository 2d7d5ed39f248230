package credentials

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/charis/types"
)

// DefaultKeyName Gemini 凭据名称
const DefaultKeyName = "GEMINI_API_KEY"

// Credential 本地存储的一条 API Key
type Credential struct {
	Name      string    `gorm:"primaryKey;size:128"`
	Value     string    `gorm:"size:512;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Credential) TableName() string {
	return "credentials"
}

// Store 凭据存储：数据库优先，环境变量兜底
type Store struct {
	db        *gorm.DB
	lookupEnv func(string) (string, bool)
	logger    *zap.Logger
}

// NewStore 创建凭据存储，db 为 nil 时只读取环境变量
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:        db,
		lookupEnv: os.LookupEnv,
		logger:    logger.With(zap.String("component", "credentials")),
	}
}

// NormalizeName 将 "gemini" 之类的简写映射为环境变量名
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, "gemini") || name == "" {
		return DefaultKeyName
	}
	return name
}

// Get 读取凭据，数据库不可用或无记录时回退到同名环境变量
func (s *Store) Get(ctx context.Context, name string) (string, error) {
	name = NormalizeName(name)

	if s.db != nil {
		var cred Credential
		err := s.db.WithContext(ctx).Where("name = ?", name).Limit(1).Find(&cred).Error
		switch {
		case err != nil:
			s.logger.Warn("credential lookup failed, falling back to environment",
				zap.String("name", name), zap.Error(err))
		case strings.TrimSpace(cred.Value) != "":
			return strings.TrimSpace(cred.Value), nil
		}
	}

	if v, ok := s.lookupEnv(name); ok {
		return strings.TrimSpace(v), nil
	}
	return "", nil
}

// Require 与 Get 相同，但缺失时返回 CREDENTIAL_MISSING 错误
func (s *Store) Require(ctx context.Context, name string) (string, error) {
	name = NormalizeName(name)
	v, err := s.Get(ctx, name)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", types.Errorf(types.ErrCredentialMissing,
			"%s is not set. Run \"charis config set-key GEMINI <API_KEY>\"", name)
	}
	return v, nil
}

// Set 写入或覆盖凭据
func (s *Store) Set(ctx context.Context, name, value string) error {
	name = NormalizeName(name)
	value = strings.TrimSpace(value)
	if value == "" {
		return types.Errorf(types.ErrCredentialMissing, "%s value is required", name)
	}
	if s.db == nil {
		return fmt.Errorf("credential store has no database")
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&Credential{Name: name, Value: value}).Error
	if err != nil {
		return fmt.Errorf("store credential %s: %w", name, err)
	}
	s.logger.Debug("credential stored", zap.String("name", name))
	return nil
}
