package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/charis/config"
	"github.com/BaSui01/charis/internal/credentials"
	"github.com/BaSui01/charis/internal/ctxkeys"
	"github.com/BaSui01/charis/internal/database"
	"github.com/BaSui01/charis/internal/history"
	"github.com/BaSui01/charis/internal/imageio"
	"github.com/BaSui01/charis/internal/metrics"
	"github.com/BaSui01/charis/internal/telemetry"
	"github.com/BaSui01/charis/internal/tlsutil"
	"github.com/BaSui01/charis/llm/image"
	"github.com/BaSui01/charis/llm/retry"
)

// app 持有一次命令执行期间的共享状态
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string

	cfg       *config.Config
	logger    *zap.Logger
	metrics   *metrics.Collector
	telemetry *telemetry.Providers
	recorder  image.Recorder
	db        *database.PoolManager
	dbErr     error

	now func() time.Time
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		logger: zap.NewNop(),
		now:    time.Now,
	}
}

// =============================================================================
// 🚀 初始化与收尾
// =============================================================================

// setup loads .env files, configuration, logging and telemetry.
func (a *app) setup(ctx context.Context) error {
	loadDotEnv()

	if a.configPath == "" {
		a.configPath = config.Path()
	}
	cfg, err := config.NewLoader().WithConfigPath(a.configPath).Load()
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg
	a.logger = initLogger(cfg.Log)
	if id, ok := ctxkeys.RunID(ctx); ok {
		a.logger = a.logger.With(zap.String("run_id", id))
	}

	a.metrics = metrics.NewCollector("charis", a.logger)
	recorders := image.Recorders{a.metrics}

	tp, err := telemetry.Init(ctx, cfg.Telemetry, Version, a.logger)
	if err != nil {
		a.logger.Warn("telemetry unavailable", zap.Error(err))
	} else {
		a.telemetry = tp
		if tp.Enabled() {
			if rec, err := telemetry.NewRecorder(nil); err == nil {
				recorders = append(recorders, rec)
			}
		}
	}
	a.recorder = recorders
	return nil
}

// loadDotEnv 读取工作目录下的 .env.local 与 .env，已存在的环境变量不被覆盖
func loadDotEnv() {
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err == nil {
			_ = godotenv.Load(name)
		}
	}
}

// finish records command metrics and releases resources.
func (a *app) finish(cmd *cobra.Command, err error, d time.Duration) {
	if a.metrics != nil && cmd != nil {
		a.metrics.RecordCommand(cmd.Name(), err, d)
		if a.cfg != nil {
			if werr := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); werr != nil {
				a.logger.Warn("failed to write metrics", zap.Error(werr))
			}
		}
	}
	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if serr := a.telemetry.Shutdown(ctx); serr != nil {
			a.logger.Debug("telemetry shutdown", zap.Error(serr))
		}
		cancel()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.logger.Sync()
}

// =============================================================================
// 🗄️ 本地状态
// =============================================================================

// state opens the local database once per process.
func (a *app) state() (*database.PoolManager, error) {
	if a.db != nil || a.dbErr != nil {
		return a.db, a.dbErr
	}
	a.db, a.dbErr = database.Open(
		a.cfg.DatabasePath(),
		database.PoolConfigFrom(a.cfg.Database),
		a.logger,
		&history.Entry{},
		&credentials.Credential{},
	)
	return a.db, a.dbErr
}

func (a *app) credentials() *credentials.Store {
	db, err := a.state()
	if err != nil {
		a.logger.Warn("local database unavailable, reading API key from environment", zap.Error(err))
		return credentials.NewStore(nil, a.logger)
	}
	return credentials.NewStore(db.DB(), a.logger)
}

// record appends a history entry; failures are logged, not returned.
func (a *app) record(ctx context.Context, entry *history.Entry) {
	db, err := a.state()
	if err != nil {
		a.logger.Warn("history not recorded", zap.Error(err))
		return
	}
	if err := history.NewStore(db.DB(), a.logger).Record(ctx, entry); err != nil {
		a.logger.Warn("history not recorded", zap.Error(err))
	}
}

// =============================================================================
// 🔗 Provider 链
// =============================================================================

// chain validates the configuration and builds the Gemini provider chain.
func (a *app) chain(ctx context.Context) (image.Chain, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	apiKey, err := a.credentials().Require(ctx, credentials.DefaultKeyName)
	if err != nil {
		return nil, err
	}

	fallbackModel := a.cfg.FallbackModel
	if fallbackModel == "" {
		fallbackModel = a.cfg.Model
	}

	return image.NewGeminiChain(apiKey, image.ChainModels{
		Native: a.cfg.Model,
		REST:   fallbackModel,
		Text:   a.cfg.TextModel,
	}, image.ProviderOptions{
		Logger: a.logger,
		Retry: &retry.RetryPolicy{
			MaxAttempts: a.cfg.Retry.Attempts,
			BaseDelay:   a.cfg.Retry.BaseDelay,
			MaxJitter:   a.cfg.Retry.MaxJitter,
		},
		Limiter: image.NewLimiter(a.cfg.RateLimit.RequestsPerMinute),
		BaseURL: a.cfg.BaseURL,
		Timeout: a.cfg.Timeout,
	})
}

func (a *app) tryOptions() []image.TryOption {
	return []image.TryOption{image.WithLogger(a.logger), image.WithMetrics(a.recorder)}
}

// =============================================================================
// 💾 输入输出
// =============================================================================

func (a *app) readInputs(ctx context.Context, inputs []string) ([][]byte, error) {
	return imageio.ReadInputs(ctx, tlsutil.SecureHTTPClient(a.cfg.Timeout), inputs)
}

func (a *app) outputDir(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return imageio.DefaultOutputDir(cwd, a.cfg.OutputDir), nil
}

// save writes bufs to dir and prints one line per file.
func (a *app) save(command, dir string, format image.Format, bufs [][]byte) ([]string, error) {
	paths, err := imageio.SaveAll(dir, format.Extension(), bufs, a.now())
	for _, p := range paths {
		a.printSaved(p)
	}
	a.metrics.RecordImagesSaved(command, len(paths))
	return paths, err
}

func (a *app) printSaved(path string) {
	fmt.Fprintf(a.stdout, "%s saved %s\n", color.GreenString("✔"), color.CyanString(path))
}

func (a *app) printOK(format string, args ...any) {
	fmt.Fprintf(a.stdout, "%s %s\n", color.GreenString("✔"), fmt.Sprintf(format, args...))
}

// =============================================================================
// 🧰 参数解析
// =============================================================================

// resolveFormat returns the flag value or the configured default.
func (a *app) resolveFormat(flag string) (image.Format, error) {
	if strings.TrimSpace(flag) == "" {
		flag = a.cfg.Format
	}
	return image.ParseFormat(flag)
}

// resolveQuality returns the flag value, or the configured default when the
// flag was not given.
func (a *app) resolveQuality(cmd *cobra.Command, flag int) *int {
	q := a.cfg.Quality
	if cmd.Flags().Changed("quality") {
		q = flag
	}
	return &q
}

func parseOptionalSize(value string) (*image.Size, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	return image.ParseSize(value)
}

// acceptance picks the validation predicate for an image set of count.
func acceptance(count, minimum int, exact bool) (func([][]byte) bool, error) {
	if exact {
		return image.Exactly(count), nil
	}
	if minimum < 1 || minimum > count {
		return nil, fmt.Errorf("--min must be between 1 and %d, got %d", count, minimum)
	}
	return image.AtLeast(minimum), nil
}
