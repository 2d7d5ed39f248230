package image

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/BaSui01/charis/llm/retry"
	"github.com/BaSui01/charis/types"
)

// NativeProvider uses the official Gemini SDK. It is the primary provider
// of the default chain and the only one offering upscaling.
type NativeProvider struct {
	mu        sync.RWMutex
	client    *genai.Client
	model     string
	textModel string

	httpClient *http.Client
	baseURL    string
	retryer    retry.Retryer
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewNativeProvider creates a native provider. SetAPIKey must be called before use.
func NewNativeProvider(opts ProviderOptions) *NativeProvider {
	logger := opts.logger().With(zap.String("component", "image_provider"), zap.String("provider", NativeProviderName))
	return &NativeProvider{
		model:      DefaultImageModel,
		textModel:  DefaultTextModel,
		httpClient: opts.httpClient(),
		baseURL:    opts.BaseURL,
		retryer:    opts.retryer(logger),
		limiter:    opts.Limiter,
		logger:     logger,
	}
}

func (p *NativeProvider) Name() string { return NativeProviderName }

func (p *NativeProvider) SetModel(model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if strings.TrimSpace(model) == "" {
		model = DefaultImageModel
	}
	p.model = model
}

func (p *NativeProvider) Model() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// SetTextModel sets the model used by Caption and Complete.
func (p *NativeProvider) SetTextModel(model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if strings.TrimSpace(model) == "" {
		model = DefaultTextModel
	}
	p.textModel = model
}

// SetAPIKey builds a fresh SDK client for key.
func (p *NativeProvider) SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return types.NewError(types.ErrCredentialMissing, "API key is empty").WithProvider(NativeProviderName)
	}

	cc := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	}
	if p.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{
			BaseURL:    strings.TrimRight(p.baseURL, "/") + "/",
			APIVersion: DefaultAPIVersion,
		}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return types.NewError(types.ErrProviderNotInitialized, "failed to create Gemini client").
			WithProvider(NativeProviderName).
			WithCause(err)
	}

	p.mu.Lock()
	p.client = client
	p.mu.Unlock()
	return nil
}

func (p *NativeProvider) Supports(capability Capability) bool {
	switch capability {
	case CapabilityUpscale, CapabilityRemoveBackground:
		return true
	}
	return false
}

// =============================================================================
// 🖼️ 操作
// =============================================================================

// Generate issues one call per requested image and stops at the first
// empty response.
func (p *NativeProvider) Generate(ctx context.Context, req *GenerateRequest) ([][]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	client, model, _, err := p.snapshot(OpGenerate)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{genai.NewContentFromText(req.promptText(), genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		Temperature:        optionFloat(req.Options, "temperature"),
		Seed:               seed32(req.Seed),
	}

	return gatherImages(ctx, req.Count, true, func(ctx context.Context, index int) ([][]byte, error) {
		return retry.DoWithResultTyped(p.retryer, ctx, func() ([][]byte, error) {
			raw, err := p.generateContent(ctx, client, OpGenerate, model, contents, cfg)
			if err != nil {
				return nil, err
			}
			return ExtractImages(raw, 1, p.logger), nil
		})
	}, p.logger)
}

func (p *NativeProvider) Edit(ctx context.Context, req *EditRequest) ([][]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	client, model, _, err := p.snapshot(OpEdit)
	if err != nil {
		return nil, err
	}

	parts := make([]*genai.Part, 0, len(req.Images)+2)
	for _, img := range req.Images {
		parts = append(parts, genai.NewPartFromBytes(img, DetectMIMEType(img, req.Format)))
	}
	instruction := req.Instruction
	if len(req.Mask) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Mask, DetectMIMEType(req.Mask, FormatPNG)))
		instruction += " The last image is a mask; only change the areas it marks."
	}
	parts = append(parts, genai.NewPartFromText(instruction+sizeHint(req.Size)))

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		Temperature:        optionFloat(req.Options, "temperature"),
	}

	return retry.DoWithResultTyped(p.retryer, ctx, func() ([][]byte, error) {
		raw, err := p.generateContent(ctx, client, OpEdit, model, contents, cfg)
		if err != nil {
			return nil, err
		}
		return ExtractImages(raw, len(req.Images), p.logger), nil
	})
}

func (p *NativeProvider) Caption(ctx context.Context, req *CaptionRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	client, _, textModel, err := p.snapshot(OpCaption)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(CaptionUserPrompt),
		genai.NewPartFromBytes(req.Image, DetectMIMEType(req.Image, "")),
	}, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(CaptionSystemPrompt, genai.RoleUser),
	}

	return retry.DoWithResultTyped(p.retryer, ctx, func() (string, error) {
		raw, err := p.generateContent(ctx, client, OpCaption, textModel, contents, cfg)
		if err != nil {
			return "", err
		}
		return ExtractText(raw), nil
	})
}

func (p *NativeProvider) Complete(ctx context.Context, req *TextRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	client, _, textModel, err := p.snapshot(OpComplete)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{}
	if strings.TrimSpace(req.System) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	return retry.DoWithResultTyped(p.retryer, ctx, func() (string, error) {
		raw, err := p.generateContent(ctx, client, OpComplete, textModel, contents, cfg)
		if err != nil {
			return "", err
		}
		return ExtractText(raw), nil
	})
}

// Upscale asks the image model to re-render the input at a higher
// resolution. The input is returned when no image comes back.
func (p *NativeProvider) Upscale(ctx context.Context, req *UpscaleRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return p.editSingle(ctx, OpUpscale, req.Image, fmt.Sprintf(upscaleInstruction, req.Factor))
}

func (p *NativeProvider) RemoveBackground(ctx context.Context, req *RemoveBackgroundRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return p.editSingle(ctx, OpRemoveBackground, req.Image, removeBackgroundInstruction)
}

func (p *NativeProvider) editSingle(ctx context.Context, op string, img []byte, instruction string) ([]byte, error) {
	images, err := p.Edit(ctx, &EditRequest{Images: [][]byte{img}, Instruction: instruction})
	if err != nil {
		var e *types.Error
		if errors.As(err, &e) {
			e.Operation = op
		}
		return nil, err
	}
	if len(images) == 0 {
		p.logger.Warn("no image returned, keeping the original", zap.String("operation", op))
		return img, nil
	}
	return images[0], nil
}

// =============================================================================
// 🔧 内部
// =============================================================================

func (p *NativeProvider) snapshot(op string) (*genai.Client, string, string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.client == nil {
		return nil, "", "", notInitialized(NativeProviderName, op)
	}
	return p.client, p.model, p.textModel, nil
}

// generateContent performs one SDK call and returns the response re-encoded
// as JSON so that both providers share the same payload extraction.
func (p *NativeProvider) generateContent(ctx context.Context, client *genai.Client, op, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) ([]byte, error) {
	if err := waitLimiter(ctx, p.limiter); err != nil {
		return nil, err
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, mapSDKError(op, err)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to encode SDK response").
			WithProvider(NativeProviderName).WithOperation(op).WithCause(err)
	}
	p.logger.Debug("generateContent completed",
		zap.String("operation", op),
		zap.String("model", model),
		zap.Int("bytes", len(raw)))
	return raw, nil
}

// mapSDKError turns SDK API errors into structured errors by status code.
func mapSDKError(op string, err error) error {
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Code > 0:
		return MapHTTPError(apiErr.Code, apiErr.Message, NativeProviderName).
			WithOperation(op).
			WithCause(err)
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil && apiErrPtr.Code > 0:
		return MapHTTPError(apiErrPtr.Code, apiErrPtr.Message, NativeProviderName).
			WithOperation(op).
			WithCause(err)
	}
	return wrapBackendError(NativeProviderName, op, err)
}

// =============================================================================
// ⚙️ 选项转换
// =============================================================================

func optionFloat(opts map[string]any, key string) *float32 {
	v, ok := opts[key]
	if !ok {
		return nil
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 32)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	out := float32(f)
	return &out
}

func seed32(seed *int64) *int32 {
	if seed == nil {
		return nil
	}
	s := *seed
	if s > math.MaxInt32 || s < math.MinInt32 {
		s %= math.MaxInt32
	}
	out := int32(s)
	return &out
}
