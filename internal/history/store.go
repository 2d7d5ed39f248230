package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 📜 执行历史
// =============================================================================

// Entry 一次命令执行的记录
type Entry struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Command     string    `gorm:"size:32;index" json:"cmd"`
	Prompt      string    `gorm:"type:text" json:"prompt,omitempty"`
	Instruction string    `gorm:"type:text" json:"instruction,omitempty"`
	Inputs      []string  `gorm:"serializer:json" json:"inputs,omitempty"`
	Files       []string  `gorm:"serializer:json" json:"files,omitempty"`
	Provider    string    `gorm:"size:64" json:"provider,omitempty"`
	Count       int       `json:"n,omitempty"`
	Size        string    `gorm:"size:32" json:"size,omitempty"`
	Format      string    `gorm:"size:8" json:"format,omitempty"`
	Quality     int       `json:"quality,omitempty"`
	OutputDir   string    `json:"out_dir,omitempty"`
	CreatedAt   time.Time `gorm:"index" json:"ts"`
}

// TableName 指定表名
func (Entry) TableName() string {
	return "history_entries"
}

// Store 基于 GORM 的历史存储
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore 创建历史存储，调用方负责迁移 Entry
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.With(zap.String("component", "history"))}
}

// Record 写入一条记录，缺省的 ID 与时间戳会被补齐
func (s *Store) Record(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	s.logger.Debug("history recorded",
		zap.String("id", entry.ID),
		zap.String("cmd", entry.Command),
		zap.Int("files", len(entry.Files)),
	)
	return nil
}

// List 返回最近 limit 条记录（按时间先后排列），limit <= 0 返回全部
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var entries []Entry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
