package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// 🧪 命令行端到端测试
// =============================================================================

type cliResult struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, args ...string) cliResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return cliResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// isolate points configuration, state and credentials at a temp directory.
func isolate(t *testing.T, baseURL string) string {
	t.Helper()
	color.NoColor = true
	dir := t.TempDir()
	t.Setenv("CHARIS_CONFIG_DIR", dir)
	t.Setenv("CHARIS_BASE_URL", baseURL)
	t.Setenv("CHARIS_RETRY_ATTEMPTS", "1")
	t.Setenv("CHARIS_LOG_LEVEL", "error")
	t.Setenv("GEMINI_API_KEY", "")
	return dir
}

func imagePayload(data string) string {
	return `{"candidates":[{"content":{"role":"model","parts":[{"inlineData":{"mimeType":"image/png","data":"` +
		base64.StdEncoding.EncodeToString([]byte(data)) + `"}}]}}]}`
}

func TestRun_Version(t *testing.T) {
	res := runCLI(t, "version")
	assert.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "charis dev")
}

func TestRun_ConfigRoundTrip(t *testing.T) {
	dir := isolate(t, "")

	res := runCLI(t, "config", "path")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), strings.TrimSpace(res.stdout))

	res = runCLI(t, "config", "set", "retry.attempts", "5")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "✔ updated retry.attempts.")

	res = runCLI(t, "config", "show")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "attempts: 5")

	res = runCLI(t, "config", "set", "quality", "400")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "quality")
}

func TestRun_GenerateRequiresKey(t *testing.T) {
	isolate(t, "http://127.0.0.1:1")

	res := runCLI(t, "generate", "-p", "a fox")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "GEMINI_API_KEY is not set")
}

func TestRun_GenerateFallsBackToREST(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"code":401,"message":"API key not valid","status":"UNAUTHENTICATED"}}`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "Aspect ratio: 16:9.", "configured default aspect is sent as a hint")
		_, _ = io.WriteString(w, imagePayload("image-"+r.URL.Path))
	}))
	t.Cleanup(server.Close)

	isolate(t, server.URL)
	out := filepath.Join(t.TempDir(), "out")

	res := runCLI(t, "config", "set-key", "gemini", "stored-key")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "stored API key for GEMINI_API_KEY")

	res = runCLI(t, "generate", "-p", "a red fox", "-n", "2", "-o", out)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, 2, strings.Count(res.stdout, "✔ saved "))
	assert.Equal(t, int32(3), calls.Load(), "one native failure, two REST calls")

	files, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	res = runCLI(t, "history")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "#1 ")
	assert.Contains(t, res.stdout, `"provider":"gemini-rest"`)
	assert.Contains(t, res.stdout, `"prompt":"a red fox"`)
	assert.Contains(t, res.stdout, `"size":"16:9"`)
}

func TestRun_GenerateExactRejectsShortfall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"only words"}]}}]}`)
	}))
	t.Cleanup(server.Close)

	isolate(t, server.URL)
	t.Setenv("GEMINI_API_KEY", "env-key")

	res := runCLI(t, "generate", "-p", "x", "-n", "2", "--exact", "-o", t.TempDir())
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "gemini-rest returned an empty result")
}

func TestRun_Caption(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"  A cat asleep on a windowsill. "}]}}]}`)
	}))
	t.Cleanup(server.Close)

	isolate(t, server.URL)
	t.Setenv("GEMINI_API_KEY", "env-key")

	input := filepath.Join(t.TempDir(), "cat.png")
	require.NoError(t, os.WriteFile(input, []byte{0x89, 0x50, 0x4e, 0x47}, 0o600))

	res := runCLI(t, "caption", "-i", input)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "A cat asleep on a windowsill.", strings.TrimSpace(res.stdout))
}

func TestRun_Presets(t *testing.T) {
	isolate(t, "")
	path := filepath.Join(t.TempDir(), "p.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prompt: neon city\nstyle: synthwave\n"), 0o600))

	res := runCLI(t, "presets", path)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, `"prompt": "neon city"`)
}

func TestAcceptance(t *testing.T) {
	two := [][]byte{[]byte("a"), []byte("b")}
	one := [][]byte{[]byte("a")}

	accept, err := acceptance(2, 1, false)
	require.NoError(t, err)
	assert.True(t, accept(one))

	accept, err = acceptance(2, 1, true)
	require.NoError(t, err)
	assert.False(t, accept(one))
	assert.True(t, accept(two))

	_, err = acceptance(2, 3, false)
	assert.Error(t, err)
}

func TestResolveAspect(t *testing.T) {
	got, err := resolveAspect("", "16:9")
	require.NoError(t, err)
	assert.Equal(t, "16:9", got)

	got, err = resolveAspect("3 : 2", "16:9")
	require.NoError(t, err)
	assert.Equal(t, "3:2", got)

	got, err = resolveAspect("", "")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = resolveAspect("wide", "16:9")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLevel("debug").String())
	assert.Equal(t, "warn", parseLevel("").String())
	assert.Equal(t, "warn", parseLevel("loud").String())
}
