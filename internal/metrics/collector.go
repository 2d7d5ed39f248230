// Package metrics 记录提供者尝试、回退与输出文件的 Prometheus 指标。
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，每个实例持有独立的 Registry
type Collector struct {
	registry *prometheus.Registry

	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	fallbacksTotal  *prometheus.CounterVec
	imagesSaved     *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.attemptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Provider attempts made by the fallback executor",
		},
		[]string{"provider", "operation", "outcome"},
	)

	c.attemptDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_attempt_duration_seconds",
			Help:      "Provider attempt duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider", "operation"},
	)

	c.fallbacksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fallbacks_total",
			Help:      "Operations satisfied by a provider other than the first",
		},
		[]string{"provider", "operation"},
	)

	c.imagesSaved = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_saved_total",
			Help:      "Image files written to disk",
		},
		[]string{"command"},
	)

	c.commandDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "CLI command duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command", "status"},
	)

	return c
}

// =============================================================================
// 🖼️ 提供者指标
// =============================================================================

// ObserveAttempt 记录一次提供者尝试
func (c *Collector) ObserveAttempt(provider, operation, outcome string, d time.Duration) {
	c.attemptsTotal.WithLabelValues(provider, operation, outcome).Inc()
	c.attemptDuration.WithLabelValues(provider, operation).Observe(d.Seconds())
}

// ObserveFallback 记录一次回退
func (c *Collector) ObserveFallback(provider, operation string) {
	c.fallbacksTotal.WithLabelValues(provider, operation).Inc()
}

// RecordImagesSaved 记录写出的文件数
func (c *Collector) RecordImagesSaved(command string, n int) {
	if n <= 0 {
		return
	}
	c.imagesSaved.WithLabelValues(command).Add(float64(n))
}

// RecordCommand 记录命令耗时
func (c *Collector) RecordCommand(command string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.commandDuration.WithLabelValues(command, status).Observe(d.Seconds())
}

// =============================================================================
// 💾 导出
// =============================================================================

// Registry 返回底层 Registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile 以 node_exporter textfile 格式写出当前指标
func (c *Collector) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	c.logger.Debug("metrics written", zap.String("path", path))
	return nil
}
