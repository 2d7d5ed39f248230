package imageio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
)

// maxDownloadBytes 单个远程输入的大小上限
const maxDownloadBytes = 64 << 20

// ReadInputs 并发读取本地路径或 http(s) URL，结果顺序与输入一致
func ReadInputs(ctx context.Context, client *http.Client, inputs []string) ([][]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}

	out := make([][]byte, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		g.Go(func() error {
			data, err := readOne(gctx, client, in)
			if err != nil {
				return err
			}
			out[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func readOne(ctx context.Context, client *http.Client, in string) ([]byte, error) {
	if IsURL(in) {
		return download(ctx, client, in)
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return nil, fmt.Errorf("read input %s: %w", in, err)
	}
	return data, nil
}

// IsURL 判断输入是否为 http(s) 地址
func IsURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func download(ctx context.Context, client *http.Client, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", u, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d downloading %s", resp.StatusCode, u)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", u, err)
	}
	if len(data) > maxDownloadBytes {
		return nil, fmt.Errorf("download %s: larger than %d bytes", u, maxDownloadBytes)
	}
	return data, nil
}
