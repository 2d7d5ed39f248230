package imageio

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadInputs_MixedSourcesKeepOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, "remote:"+r.URL.Path)
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	local := filepath.Join(dir, "local.png")
	require.NoError(t, os.WriteFile(local, []byte("local"), 0o600))

	got, err := ReadInputs(context.Background(), server.Client(), []string{
		server.URL + "/a.png", local, server.URL + "/b.png",
	})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("remote:/a.png"), []byte("local"), []byte("remote:/b.png")}, got)

	_, err = ReadInputs(context.Background(), server.Client(), []string{local, server.URL + "/missing.png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")

	_, err = ReadInputs(context.Background(), nil, []string{filepath.Join(dir, "nope.png")})
	assert.Error(t, err)
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/cat.png"))
	assert.True(t, IsURL("http://localhost:8080/x"))
	assert.False(t, IsURL("./cat.png"))
	assert.False(t, IsURL("C:\\images\\cat.png"))
	assert.False(t, IsURL("ftp://example.com/cat.png"))
}

func TestMakeFilename(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local)
	assert.Equal(t, "img-7-20250102-030405.webp", MakeFilename(7, "webp", ts))
}

func TestDefaultOutputDir(t *testing.T) {
	assert.Equal(t, "out", DefaultOutputDir("/work", "out"))
	assert.Equal(t, filepath.Join("/work", "generated-images"), DefaultOutputDir("/work", ""))
}

func TestSaveAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.Local)

	paths, err := SaveAll(dir, "png", [][]byte{[]byte("one"), []byte("two")}, now)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "img-2-20250601-100000.png"), paths[1])

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestWriteAtomic_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.png")
	require.NoError(t, WriteAtomic(path, []byte("a")))
	require.NoError(t, WriteAtomic(path, []byte("b")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
}
