// =============================================================================
// 📦 Charis 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath(config.Path()).
//	    WithEnvPrefix("CHARIS").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/charis/types"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 Charis 的完整配置结构
type Config struct {
	// Provider 服务商，目前只支持 gemini
	Provider string `yaml:"provider" env:"PROVIDER"`

	// Model 主 Provider 的图像模型
	Model string `yaml:"model" env:"MODEL"`

	// FallbackModel 备用 Provider 的图像模型（为空与 Model 相同）
	FallbackModel string `yaml:"fallback_model" env:"FALLBACK_MODEL"`

	// TextModel 描述与提示词改写使用的文本模型
	TextModel string `yaml:"text_model" env:"TEXT_MODEL"`

	// BaseURL 覆盖后端根地址（代理或本地网关）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`

	// OutputDir 输出目录
	OutputDir string `yaml:"output_dir" env:"OUTPUT_DIR"`

	// Format 默认输出格式: png, jpg, webp
	Format string `yaml:"format" env:"FORMAT"`

	// Quality 默认图像质量 0-100
	Quality int `yaml:"quality" env:"QUALITY"`

	// DefaultAspect 默认宽高比
	DefaultAspect string `yaml:"default_aspect" env:"DEFAULT_ASPECT"`

	// Timeout 单次请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`

	// Retry 重试配置
	Retry RetryConfig `yaml:"retry" env:"RETRY"`

	// RateLimit 请求节流配置
	RateLimit RateLimitConfig `yaml:"rate_limit" env:"RATE_LIMIT"`

	// Database 本地状态数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// RetryConfig 瞬时错误重试配置
type RetryConfig struct {
	// 总尝试次数（含第一次）
	Attempts int `yaml:"attempts" env:"ATTEMPTS"`
	// 基础延迟
	BaseDelay time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	// 抖动上限
	MaxJitter time.Duration `yaml:"max_jitter" env:"MAX_JITTER"`
}

// RateLimitConfig 请求节流配置
type RateLimitConfig struct {
	// 每分钟请求数，0 表示不限制
	RequestsPerMinute int `yaml:"requests_per_minute" env:"REQUESTS_PER_MINUTE"`
}

// DatabaseConfig 本地 SQLite 配置
type DatabaseConfig struct {
	// 数据库文件路径（为空使用配置目录下的 charis.db）
	Path string `yaml:"path" env:"PATH"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Textfile 命令结束时写入的 Prometheus 文本文件（为空不写）
	Textfile string `yaml:"textfile" env:"TEXTFILE"`
}

// =============================================================================
// 📂 路径
// =============================================================================

// Dir returns the configuration directory: $CHARIS_CONFIG_DIR or ~/.charis.
func Dir() string {
	if dir := strings.TrimSpace(os.Getenv("CHARIS_CONFIG_DIR")); dir != "" {
		if abs, err := filepath.Abs(dir); err == nil {
			return abs
		}
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".charis")
}

// Path returns the configuration file path.
func Path() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DatabasePath resolves the state database location.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(Dir(), "charis.db")
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "CHARIS",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}

	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}

	return nil
}

// =============================================================================
// 💾 保存与修改
// =============================================================================

// Load 从默认位置加载配置并验证
func Load() (*Config, error) {
	cfg, err := NewLoader().WithConfigPath(Path()).Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Set updates one field addressed by its dotted yaml name (for example
// "retry.attempts") and validates the result. On failure c is unchanged.
func (c *Config) Set(key, value string) error {
	updated := *c
	updated.Log.OutputPaths = append([]string(nil), c.Log.OutputPaths...)

	field, err := lookupField(reflect.ValueOf(&updated).Elem(), strings.Split(strings.TrimSpace(key), "."))
	if err != nil {
		return err
	}
	if err := setFieldValue(field, strings.TrimSpace(value)); err != nil {
		return types.Errorf(types.ErrConfigInvalid, "invalid value %q for %s", value, key).WithCause(err)
	}
	if err := updated.Validate(); err != nil {
		return err
	}

	*c = updated
	return nil
}

// Keys lists every settable dotted key.
func Keys() []string {
	var keys []string
	collectKeys(reflect.TypeOf(Config{}), "", &keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, keys *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := yamlName(f)
		if name == "" {
			continue
		}
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)) {
			collectKeys(f.Type, prefix+name+".", keys)
			continue
		}
		*keys = append(*keys, prefix+name)
	}
}

func lookupField(v reflect.Value, path []string) (reflect.Value, error) {
	if len(path) == 0 || path[0] == "" {
		return reflect.Value{}, types.NewError(types.ErrConfigInvalid, "empty config key")
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if yamlName(t.Field(i)) != path[0] {
			continue
		}
		field := v.Field(i)
		if len(path) == 1 {
			if field.Kind() == reflect.Struct {
				break
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			break
		}
		return lookupField(field, path[1:])
	}
	return reflect.Value{}, types.Errorf(types.ErrConfigInvalid, "unknown config key %q", strings.Join(path, "."))
}

func yamlName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// =============================================================================
// 🔍 验证
// =============================================================================

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []error

	if c.Provider != "gemini" {
		errs = append(errs, fmt.Errorf("unsupported provider %q", c.Provider))
	}
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model must not be empty"))
	}
	switch strings.ToLower(c.Format) {
	case "png", "jpg", "jpeg", "webp":
	default:
		errs = append(errs, fmt.Errorf("format must be png, jpg or webp, got %q", c.Format))
	}
	if c.Quality < 0 || c.Quality > 100 {
		errs = append(errs, errors.New("quality must be between 0 and 100"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.Retry.Attempts < 1 {
		errs = append(errs, errors.New("retry.attempts must be at least 1"))
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxJitter < 0 {
		errs = append(errs, errors.New("retry delays must not be negative"))
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("rate_limit.requests_per_minute must not be negative"))
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrConfigInvalid, "config validation failed").WithCause(errors.Join(errs...))
	}
	return nil
}
