package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/charis/llm/image"
)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

var _ image.Recorder = (*Collector)(nil)

func TestCollector_ObserveAttempt(t *testing.T) {
	c := NewCollector("charis", zap.NewNop())

	c.ObserveAttempt("gemini-native", "image generation", image.OutcomeError, 2*time.Second)
	c.ObserveAttempt("gemini-rest", "image generation", image.OutcomeSuccess, time.Second)
	c.ObserveAttempt("gemini-rest", "image generation", image.OutcomeSuccess, time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.attemptsTotal.WithLabelValues("gemini-native", "image generation", "error")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.attemptsTotal.WithLabelValues("gemini-rest", "image generation", "success")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.attemptDuration))
}

func TestCollector_ObserveFallback(t *testing.T) {
	c := NewCollector("charis", nil)

	c.ObserveFallback("gemini-rest", "image edit")
	assert.Equal(t, float64(1), testutil.ToFloat64(c.fallbacksTotal.WithLabelValues("gemini-rest", "image edit")))
}

func TestCollector_RecordImagesAndCommand(t *testing.T) {
	c := NewCollector("charis", nil)

	c.RecordImagesSaved("generate", 3)
	c.RecordImagesSaved("generate", 0)
	assert.Equal(t, float64(3), testutil.ToFloat64(c.imagesSaved.WithLabelValues("generate")))

	c.RecordCommand("generate", nil, time.Second)
	c.RecordCommand("generate", errors.New("x"), time.Second)
	assert.Equal(t, 2, testutil.CollectAndCount(c.commandDuration))
}

func TestCollector_IndependentRegistries(t *testing.T) {
	a := NewCollector("charis", nil)
	b := NewCollector("charis", nil)

	a.ObserveFallback("p", "op")
	assert.Equal(t, 1, testutil.CollectAndCount(a.fallbacksTotal))
	assert.Equal(t, 0, testutil.CollectAndCount(b.fallbacksTotal))
}

func TestCollector_WriteTextfile(t *testing.T) {
	c := NewCollector("charis", nil)
	c.ObserveFallback("gemini-rest", "image generation")

	path := filepath.Join(t.TempDir(), "textfile", "charis.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `charis_provider_fallbacks_total{operation="image generation",provider="gemini-rest"} 1`)

	assert.NoError(t, c.WriteTextfile(""))
}
