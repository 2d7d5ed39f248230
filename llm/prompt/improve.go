package prompt

import (
	"bytes"
	"context"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/BaSui01/charis/llm/image"
	"github.com/BaSui01/charis/types"
)

// ImproveSystemPrompt 提示词改写的系统指令
const ImproveSystemPrompt = `Task: Rewrite a prompt for image generation.
Guidelines:
- Preserve the original intent.
- Add concrete details about style, lighting, composition, camera, and quality.
- Avoid vague language. Return a single final prompt.`

var improveTemplate = template.Must(template.New("improve").Parse(
	`User prompt: {{.Prompt}}
Additional style: {{.Style}}`))

// ImproveRequest builds the completion request for Improve.
func ImproveRequest(prompt, style string) (*image.TextRequest, error) {
	var buf bytes.Buffer
	if err := improveTemplate.Execute(&buf, struct{ Prompt, Style string }{
		Prompt: strings.TrimSpace(prompt),
		Style:  strings.TrimSpace(style),
	}); err != nil {
		return nil, err
	}
	return &image.TextRequest{System: ImproveSystemPrompt, Prompt: buf.String()}, nil
}

// Improve 通过 Provider 链改写提示词
// 所有 Provider 都返回空文本时退回原始提示词；只要有 Provider 请求失败，链耗尽时返回最后的错误
func Improve(ctx context.Context, chain image.Chain, prompt, style string, logger *zap.Logger, opts ...image.TryOption) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	req, err := ImproveRequest(prompt, style)
	if err != nil {
		return "", err
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	// 任一 Provider 硬失败时不再退回原始提示词
	var failed bool
	res, err := image.TryProviders(ctx, chain,
		func(ctx context.Context, p image.Provider) (string, error) {
			text, err := p.Complete(ctx, req)
			if err != nil {
				failed = true
			}
			return text, err
		},
		image.NonEmptyText,
		image.OpComplete,
		append([]image.TryOption{image.WithLogger(logger)}, opts...)...,
	)
	if err != nil {
		if !failed && types.IsCode(err, types.ErrEmptyResult) {
			logger.Warn("no provider returned an improved prompt, keeping the original")
			return strings.TrimSpace(prompt), nil
		}
		return "", err
	}
	return strings.TrimSpace(res.Value), nil
}
