package image

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/charis/types"
)

func newTestNative(t *testing.T, handler http.HandlerFunc) *NativeProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p := NewNativeProvider(ProviderOptions{
		Logger:  zaptest.NewLogger(t),
		Retry:   noSleepPolicy(),
		BaseURL: server.URL + "/",
	})
	require.NoError(t, p.SetAPIKey("test-key"))
	return p
}

func TestNativeProvider_GenerateStopsOnEmpty(t *testing.T) {
	var calls atomic.Int32
	p := newTestNative(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			_, _ = io.WriteString(w, imageResponse("first"))
			return
		}
		_, _ = io.WriteString(w, textResponse("I cannot draw more"))
	})

	images, err := p.Generate(context.Background(), &GenerateRequest{Prompt: "three cats", Count: 3})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("first")}, images)
	assert.Equal(t, int32(2), calls.Load(), "an empty response ends the loop")
}

func TestNativeProvider_EditAndCaption(t *testing.T) {
	p := newTestNative(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(r.URL.Path, DefaultTextModel+":") {
			assert.Equal(t, CaptionUserPrompt, gjson.GetBytes(body, "contents.0.parts.0.text").String())
			_, _ = io.WriteString(w, textResponse("A lighthouse at dusk."))
			return
		}
		assert.Equal(t, "add a moon", gjson.GetBytes(body, "contents.0.parts.1.text").String())
		_, _ = io.WriteString(w, imageResponse("edited"))
	})

	images, err := p.Edit(context.Background(), &EditRequest{Images: [][]byte{{0x89, 0x50, 0x4e}}, Instruction: "add a moon"})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("edited")}, images)

	caption, err := p.Caption(context.Background(), &CaptionRequest{Image: []byte{0xff, 0xd8}})
	require.NoError(t, err)
	assert.Equal(t, "A lighthouse at dusk.", caption)
}

func TestNativeProvider_UpscaleKeepsOriginalWhenEmpty(t *testing.T) {
	p := newTestNative(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, gjson.GetBytes(body, "contents.0.parts.1.text").String(), "factor of 4")
		_, _ = io.WriteString(w, textResponse("nothing to show"))
	})

	up, ok := AsUpscaler(p)
	require.True(t, ok)

	original := []byte{0x89, 0x50, 0x01}
	out, err := up.Upscale(context.Background(), &UpscaleRequest{Image: original, Factor: 4})
	require.NoError(t, err)
	assert.Equal(t, original, out)
}

func TestNativeProvider_RemoveBackground(t *testing.T) {
	p := newTestNative(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, imageResponse("cutout"))
	})

	remover, ok := AsBackgroundRemover(p)
	require.True(t, ok)
	out, err := remover.RemoveBackground(context.Background(), &RemoveBackgroundRequest{Image: []byte{0x89, 0x50}})
	require.NoError(t, err)
	assert.Equal(t, []byte("cutout"), out)
}

func TestNativeProvider_BackendError(t *testing.T) {
	p := newTestNative(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	})

	_, err := p.Generate(context.Background(), &GenerateRequest{Prompt: "x", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not valid")
}

func TestNativeProvider_RequiresKey(t *testing.T) {
	p := NewNativeProvider(ProviderOptions{})
	assert.Equal(t, NativeProviderName, p.Name())
	assert.True(t, p.Supports(CapabilityUpscale))
	assert.True(t, p.Supports(CapabilityRemoveBackground))

	_, err := p.Caption(context.Background(), &CaptionRequest{Image: []byte{1}})
	assert.True(t, types.IsCode(err, types.ErrProviderNotInitialized))

	assert.True(t, types.IsCode(p.SetAPIKey(""), types.ErrCredentialMissing))
}

func TestOptionConversions(t *testing.T) {
	assert.Nil(t, optionFloat(nil, "temperature"))
	assert.Equal(t, float32(0.5), *optionFloat(map[string]any{"temperature": 0.5}, "temperature"))
	assert.Equal(t, float32(1), *optionFloat(map[string]any{"temperature": 1}, "temperature"))
	assert.Equal(t, float32(0.25), *optionFloat(map[string]any{"temperature": "0.25"}, "temperature"))
	assert.Nil(t, optionFloat(map[string]any{"temperature": "hot"}, "temperature"))

	assert.Nil(t, seed32(nil))
	s := int64(42)
	assert.Equal(t, int32(42), *seed32(&s))
}
