package image

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/BaSui01/charis/types"
)

// MapHTTPError 将 HTTP 状态码映射为带有合适重试标记的 types.Error
func MapHTTPError(status int, msg string, provider string) *types.Error {
	e := &types.Error{Message: msg, HTTPStatus: status, Provider: provider}

	switch status {
	case http.StatusUnauthorized:
		e.Code = types.ErrUnauthorized
	case http.StatusForbidden:
		e.Code = types.ErrForbidden
	case http.StatusTooManyRequests:
		e.Code = types.ErrRateLimited
		e.Retryable = true
	case http.StatusBadRequest:
		// 检查配额关键字
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "billing") {
			e.Code = types.ErrQuotaExceeded
		} else {
			e.Code = types.ErrInvalidRequest
		}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		e.Code = types.ErrUpstreamError
		e.Retryable = true
	case 529: // Model overloaded
		e.Code = types.ErrModelOverloaded
		e.Retryable = true
	default:
		e.Code = types.ErrUpstreamError
		e.Retryable = status >= 500
	}
	return e
}

// readErrorMessage 读取响应体中的错误消息
// Google 风格 {"error":{"message","status"}}，失败则回退到原始文本
func readErrorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		msg := gjson.GetBytes(body, "error.message").String()
		status := gjson.GetBytes(body, "error.status").String()
		switch {
		case msg != "" && status != "":
			return msg + " (status: " + status + ")"
		case msg != "":
			return msg
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 512 {
		text = text[:512] + "..."
	}
	if text == "" {
		return "empty error response"
	}
	return text
}

// isTransient decides whether a failed backend call is worth retrying.
// Structured errors carry their own flag; anything else (network, SDK) is retried.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var e *types.Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return true
}

func notInitialized(provider, op string) *types.Error {
	return types.Errorf(types.ErrProviderNotInitialized,
		"%s is not initialized, configure the API key first", provider).
		WithProvider(provider).
		WithOperation(op)
}

// wrapBackendError tags err with the provider and operation.
func wrapBackendError(provider, op string, err error) error {
	var e *types.Error
	if errors.As(err, &e) {
		if e.Provider == "" {
			e.Provider = provider
		}
		if e.Operation == "" {
			e.Operation = op
		}
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return types.NewError(types.ErrUpstreamError, provider+" request failed").
		WithProvider(provider).
		WithOperation(op).
		WithRetryable(true).
		WithCause(err)
}

func waitLimiter(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}
