package image

import (
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/charis/internal/tlsutil"
	"github.com/BaSui01/charis/llm/retry"
)

// 默认模型与提示词常量。Provider 在 SetModel 时复制默认值，不在调用时读取共享状态。
const (
	DefaultImageModel = "gemini-2.5-flash-image-preview"
	DefaultTextModel  = "gemini-2.5-flash"

	DefaultBaseURL    = "https://generativelanguage.googleapis.com"
	DefaultAPIVersion = "v1beta"
	DefaultTimeout    = 120 * time.Second

	NativeProviderName = "gemini-native"
	RESTProviderName   = "gemini-rest"
)

const (
	CaptionSystemPrompt = "You are an assistant that writes concise, human-friendly captions for images. Respond with one sentence without code blocks or extra commentary."
	CaptionUserPrompt   = "Describe the key visual details of this image in one natural sentence."

	upscaleInstruction          = "Upscale this image by a factor of %d. Preserve every detail, color and composition exactly; only increase resolution and sharpness."
	removeBackgroundInstruction = "Remove the background from this image. Keep the main subject untouched and make the background fully transparent."
)

// ProviderOptions 配置具体的 Provider 实现.
type ProviderOptions struct {
	// Logger 诊断日志（为空使用 Nop）
	Logger *zap.Logger

	// Retry 单次网络调用的瞬时错误重试策略（为空使用默认策略）
	Retry *retry.RetryPolicy

	// Limiter 出站请求节流（为空不限速）
	Limiter *rate.Limiter

	// HTTPClient 自定义 HTTP 客户端
	HTTPClient *http.Client

	// BaseURL 覆盖后端根地址（测试或代理），两个 Provider 共用，版本段自动追加
	BaseURL string

	// Timeout 单次请求超时（HTTPClient 为空时生效）
	Timeout time.Duration
}

func (o ProviderOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o ProviderOptions) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return tlsutil.SecureHTTPClient(timeout)
}

func (o ProviderOptions) retryer(logger *zap.Logger) retry.Retryer {
	policy := retry.DefaultRetryPolicy()
	if o.Retry != nil {
		p := *o.Retry
		policy = &p
	}
	if policy.Retryable == nil {
		policy.Retryable = isTransient
	}
	return retry.NewBackoffRetryer(policy, logger)
}

// NewLimiter builds a limiter allowing requestsPerMinute calls; zero or less means unlimited.
func NewLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
}
