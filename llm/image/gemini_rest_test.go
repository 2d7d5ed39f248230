package image

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/charis/llm/retry"
	"github.com/BaSui01/charis/types"
)

func noSleepPolicy() *retry.RetryPolicy {
	return &retry.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

func imageResponse(data string) string {
	return `{"candidates":[{"content":{"role":"model","parts":[{"inlineData":{"mimeType":"image/png","data":"` + b64(data) + `"}}]}}]}`
}

func textResponse(text string) string {
	return `{"candidates":[{"content":{"role":"model","parts":[{"text":` + mustJSON(text) + `}]}}]}`
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func newTestREST(t *testing.T, handler http.HandlerFunc) (*RESTProvider, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p := NewRESTProvider(ProviderOptions{
		Logger:  zaptest.NewLogger(t),
		Retry:   noSleepPolicy(),
		BaseURL: server.URL,
	})
	require.NoError(t, p.SetAPIKey("test-key"))
	return p, server
}

func TestRESTProvider_Generate(t *testing.T) {
	var calls atomic.Int32
	p, _ := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/"+DefaultAPIVersion+"/models/"+DefaultImageModel+":generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "a red fox Target output size: 64 by 64 pixels.", gjson.GetBytes(body, "contents.0.parts.0.text").String())
		assert.Equal(t, "IMAGE", gjson.GetBytes(body, "generationConfig.responseModalities.1").String())
		assert.Equal(t, int64(7), gjson.GetBytes(body, "generationConfig.seed").Int())

		_, _ = io.WriteString(w, imageResponse("img-"+string(rune('0'+n))))
	})

	seed := int64(7)
	images, err := p.Generate(context.Background(), &GenerateRequest{
		Prompt: "a red fox",
		Count:  2,
		Size:   &Size{Width: 64, Height: 64},
		Seed:   &seed,
	})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("img-1"), []byte("img-2")}, images)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRESTProvider_GenerateKeepsGoingPastEmpty(t *testing.T) {
	var calls atomic.Int32
	p, _ := newTestREST(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = io.WriteString(w, textResponse("no image this time"))
			return
		}
		_, _ = io.WriteString(w, imageResponse("late"))
	})

	images, err := p.Generate(context.Background(), &GenerateRequest{Prompt: "x", Count: 2})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("late")}, images)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRESTProvider_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	p, _ := newTestREST(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"error":{"message":"slow down","status":"RESOURCE_EXHAUSTED"}}`)
			return
		}
		_, _ = io.WriteString(w, imageResponse("ok"))
	})

	images, err := p.Edit(context.Background(), &EditRequest{Images: [][]byte{{0x89, 0x50}}, Instruction: "make it blue"})
	require.NoError(t, err)
	assert.Len(t, images, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRESTProvider_DoesNotRetryAuthErrors(t *testing.T) {
	var calls atomic.Int32
	p, _ := newTestREST(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"API key not valid"}}`)
	})

	_, err := p.Generate(context.Background(), &GenerateRequest{Prompt: "x", Count: 1})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrUnauthorized))
	assert.Contains(t, err.Error(), "API key not valid")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRESTProvider_EditSendsImagesAndMask(t *testing.T) {
	p, _ := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		parts := gjson.GetBytes(body, "contents.0.parts").Array()
		if !assert.Len(t, parts, 4) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "image/jpeg", parts[0].Get("inlineData.mimeType").String())
		assert.Equal(t, "image/png", parts[1].Get("inlineData.mimeType").String())
		assert.Contains(t, parts[3].Get("text").String(), "mask")
		_, _ = io.WriteString(w, imageResponse("edited"))
	})

	images, err := p.Edit(context.Background(), &EditRequest{
		Images:      [][]byte{{0xff, 0xd8, 0x01}, {0x89, 0x50, 0x01}},
		Mask:        []byte{0x89, 0x50, 0x02},
		Instruction: "remove the hat",
	})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("edited")}, images)
}

func TestRESTProvider_EditWarnsOnShortfall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, imageResponse("only-one"))
	}))
	t.Cleanup(server.Close)

	core, logs := observer.New(zapcore.WarnLevel)
	p := NewRESTProvider(ProviderOptions{
		Logger:  zap.New(core),
		Retry:   noSleepPolicy(),
		BaseURL: server.URL,
	})
	require.NoError(t, p.SetAPIKey("test-key"))

	images, err := p.Edit(context.Background(), &EditRequest{
		Images:      [][]byte{{0x89, 0x50, 0x01}, {0x89, 0x50, 0x02}},
		Instruction: "combine them",
	})
	require.NoError(t, err)
	assert.Len(t, images, 1)

	warnings := logs.FilterMessage("fewer images than requested").All()
	require.Len(t, warnings, 1)
	fields := warnings[0].ContextMap()
	assert.Equal(t, int64(2), fields["requested"])
	assert.Equal(t, int64(1), fields["received"])
}

func TestRESTProvider_CaptionAndComplete(t *testing.T) {
	p, _ := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/custom-text:generateContent", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		if gjson.GetBytes(body, "contents.0.parts.1.inlineData").Exists() {
			assert.Equal(t, CaptionSystemPrompt, gjson.GetBytes(body, "systemInstruction.parts.0.text").String())
			_, _ = io.WriteString(w, textResponse(" A dog on a beach. "))
			return
		}
		assert.Equal(t, "be brief", gjson.GetBytes(body, "systemInstruction.parts.0.text").String())
		_, _ = io.WriteString(w, textResponse("better prompt"))
	})
	p.SetTextModel("custom-text")

	caption, err := p.Caption(context.Background(), &CaptionRequest{Image: []byte{0x89, 0x50}})
	require.NoError(t, err)
	assert.Equal(t, "A dog on a beach.", caption)

	text, err := p.Complete(context.Background(), &TextRequest{System: "be brief", Prompt: "dog"})
	require.NoError(t, err)
	assert.Equal(t, "better prompt", text)
}

func TestRESTProvider_Capabilities(t *testing.T) {
	p := NewRESTProvider(ProviderOptions{})
	assert.True(t, p.Supports(CapabilityRemoveBackground))
	assert.False(t, p.Supports(CapabilityUpscale))

	_, ok := AsUpscaler(p)
	assert.False(t, ok)

	_, err := p.Generate(context.Background(), &GenerateRequest{Prompt: "x", Count: 1})
	assert.True(t, types.IsCode(err, types.ErrProviderNotInitialized))

	require.NoError(t, p.SetAPIKey("k"))
	remover, ok := AsBackgroundRemover(p)
	require.True(t, ok)
	out, err := remover.RemoveBackground(context.Background(), &RemoveBackgroundRequest{Image: []byte("orig")})
	require.NoError(t, err)
	assert.Equal(t, []byte("orig"), out)
}

func TestRESTProvider_ModelReset(t *testing.T) {
	p := NewRESTProvider(ProviderOptions{})
	p.SetModel("other")
	assert.Equal(t, "other", p.Model())
	p.SetModel("")
	assert.Equal(t, DefaultImageModel, p.Model())

	assert.True(t, types.IsCode(p.SetAPIKey("  "), types.ErrCredentialMissing))
}
