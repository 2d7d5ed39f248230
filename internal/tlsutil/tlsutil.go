package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// DefaultTimeout 与 image.DefaultTimeout 一致：单张图片生成可能耗时较长，
// 超时覆盖整个请求（含读取 base64 图片响应体）
const DefaultTimeout = 120 * time.Second

// DefaultTLSConfig 返回访问 generativelanguage.googleapis.com 与图片 URL 时使用的
// TLS 配置：TLS 1.2+，仅 AEAD 密码套件。API key 随每个请求发送，不允许降级。
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// SecureTransport 返回 CLI 单次运行规模的传输层。
// 遵循 HTTPS_PROXY / NO_PROXY；一次命令最多对同一主机发出 count 个串行请求
// 加少量并发输入下载，因此只保留少量空闲连接。
func SecureTransport() *http.Transport {
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: DefaultTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          8,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// SecureHTTPClient returns the client shared by the native provider (as the
// genai HTTPClient), the REST provider and imageio input downloads, built from
// config timeout. A non-positive timeout falls back to DefaultTimeout.
func SecureHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: SecureTransport(),
	}
}
