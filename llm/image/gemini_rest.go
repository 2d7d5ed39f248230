package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/charis/llm/retry"
	"github.com/BaSui01/charis/types"
)

// RESTProvider talks to the Gemini generateContent endpoint over plain HTTP.
// It is the secondary provider of the default chain.
type RESTProvider struct {
	mu        sync.RWMutex
	apiKey    string
	model     string
	textModel string

	client  *http.Client
	baseURL string
	retryer retry.Retryer
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRESTProvider creates a REST provider. SetAPIKey must be called before use.
func NewRESTProvider(opts ProviderOptions) *RESTProvider {
	logger := opts.logger().With(zap.String("component", "image_provider"), zap.String("provider", RESTProviderName))
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &RESTProvider{
		model:     DefaultImageModel,
		textModel: DefaultTextModel,
		client:    opts.httpClient(),
		baseURL:   baseURL,
		retryer:   opts.retryer(logger),
		limiter:   opts.Limiter,
		logger:    logger,
	}
}

func (p *RESTProvider) Name() string { return RESTProviderName }

func (p *RESTProvider) SetModel(model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if strings.TrimSpace(model) == "" {
		model = DefaultImageModel
	}
	p.model = model
}

func (p *RESTProvider) Model() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// SetTextModel sets the model used by Caption and Complete.
func (p *RESTProvider) SetTextModel(model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if strings.TrimSpace(model) == "" {
		model = DefaultTextModel
	}
	p.textModel = model
}

func (p *RESTProvider) SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return types.NewError(types.ErrCredentialMissing, "API key is empty").WithProvider(RESTProviderName)
	}
	p.mu.Lock()
	p.apiKey = key
	p.mu.Unlock()
	return nil
}

// Supports reports background removal only; upscaling is not offered.
func (p *RESTProvider) Supports(capability Capability) bool {
	return capability == CapabilityRemoveBackground
}

// =============================================================================
// 📦 请求体
// =============================================================================

type restPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *restInline `json:"inlineData,omitempty"`
}

type restInline struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type restContent struct {
	Parts []restPart `json:"parts"`
	Role  string     `json:"role,omitempty"`
}

type restRequest struct {
	Contents          []restContent     `json:"contents"`
	SystemInstruction *restContent      `json:"systemInstruction,omitempty"`
	GenerationConfig  *restGenerationCf `json:"generationConfig,omitempty"`
}

type restGenerationCf struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
	Temperature        *float32 `json:"temperature,omitempty"`
	Seed               *int32   `json:"seed,omitempty"`
}

func inlinePart(data []byte, format Format) restPart {
	return restPart{InlineData: &restInline{
		MimeType: DetectMIMEType(data, format),
		Data:     base64.StdEncoding.EncodeToString(data),
	}}
}

// =============================================================================
// 🖼️ 操作
// =============================================================================

// Generate issues one call per requested image. Empty calls are skipped
// rather than ending the loop.
func (p *RESTProvider) Generate(ctx context.Context, req *GenerateRequest) ([][]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	model, _, err := p.snapshot(OpGenerate)
	if err != nil {
		return nil, err
	}

	body := restRequest{
		Contents: []restContent{{
			Role:  "user",
			Parts: []restPart{{Text: req.promptText()}},
		}},
		GenerationConfig: &restGenerationCf{
			ResponseModalities: []string{"TEXT", "IMAGE"},
			Temperature:        optionFloat(req.Options, "temperature"),
			Seed:               seed32(req.Seed),
		},
	}

	return gatherImages(ctx, req.Count, false, func(ctx context.Context, index int) ([][]byte, error) {
		return retry.DoWithResultTyped(p.retryer, ctx, func() ([][]byte, error) {
			raw, err := p.post(ctx, OpGenerate, model, body)
			if err != nil {
				return nil, err
			}
			return ExtractImages(raw, 1, p.logger), nil
		})
	}, p.logger)
}

// Edit sends every input image followed by the instruction in one call.
func (p *RESTProvider) Edit(ctx context.Context, req *EditRequest) ([][]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	model, _, err := p.snapshot(OpEdit)
	if err != nil {
		return nil, err
	}

	parts := make([]restPart, 0, len(req.Images)+2)
	for _, img := range req.Images {
		parts = append(parts, inlinePart(img, req.Format))
	}
	instruction := req.Instruction
	if len(req.Mask) > 0 {
		parts = append(parts, inlinePart(req.Mask, FormatPNG))
		instruction += " The last image is a mask; only change the areas it marks."
	}
	parts = append(parts, restPart{Text: instruction + sizeHint(req.Size)})

	body := restRequest{
		Contents: []restContent{{Role: "user", Parts: parts}},
		GenerationConfig: &restGenerationCf{
			ResponseModalities: []string{"TEXT", "IMAGE"},
			Temperature:        optionFloat(req.Options, "temperature"),
		},
	}

	return retry.DoWithResultTyped(p.retryer, ctx, func() ([][]byte, error) {
		raw, err := p.post(ctx, OpEdit, model, body)
		if err != nil {
			return nil, err
		}
		return ExtractImages(raw, len(req.Images), p.logger), nil
	})
}

func (p *RESTProvider) Caption(ctx context.Context, req *CaptionRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	_, textModel, err := p.snapshot(OpCaption)
	if err != nil {
		return "", err
	}

	body := restRequest{
		SystemInstruction: &restContent{Parts: []restPart{{Text: CaptionSystemPrompt}}},
		Contents: []restContent{{
			Role:  "user",
			Parts: []restPart{{Text: CaptionUserPrompt}, inlinePart(req.Image, "")},
		}},
	}

	return retry.DoWithResultTyped(p.retryer, ctx, func() (string, error) {
		raw, err := p.post(ctx, OpCaption, textModel, body)
		if err != nil {
			return "", err
		}
		return ExtractText(raw), nil
	})
}

func (p *RESTProvider) Complete(ctx context.Context, req *TextRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	_, textModel, err := p.snapshot(OpComplete)
	if err != nil {
		return "", err
	}

	body := restRequest{
		Contents: []restContent{{Role: "user", Parts: []restPart{{Text: req.Prompt}}}},
	}
	if strings.TrimSpace(req.System) != "" {
		body.SystemInstruction = &restContent{Parts: []restPart{{Text: req.System}}}
	}

	return retry.DoWithResultTyped(p.retryer, ctx, func() (string, error) {
		raw, err := p.post(ctx, OpComplete, textModel, body)
		if err != nil {
			return "", err
		}
		return ExtractText(raw), nil
	})
}

// RemoveBackground has no backend support here and returns the input unchanged.
func (p *RESTProvider) RemoveBackground(ctx context.Context, req *RemoveBackgroundRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, _, err := p.snapshot(OpRemoveBackground); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.logger.Warn("background removal is not available on this provider, returning the original image")
	out := make([]byte, len(req.Image))
	copy(out, req.Image)
	return out, nil
}

// =============================================================================
// 🔧 内部
// =============================================================================

func (p *RESTProvider) snapshot(op string) (model, textModel string, err error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.apiKey == "" {
		return "", "", notInitialized(RESTProviderName, op)
	}
	return p.model, p.textModel, nil
}

func (p *RESTProvider) post(ctx context.Context, op, model string, body restRequest) ([]byte, error) {
	if err := waitLimiter(ctx, p.limiter); err != nil {
		return nil, err
	}

	p.mu.RLock()
	apiKey := p.apiKey
	p.mu.RUnlock()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to encode request").
			WithProvider(RESTProviderName).WithOperation(op).WithCause(err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", p.baseURL, DefaultAPIVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to create request").
			WithProvider(RESTProviderName).WithOperation(op).WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, wrapBackendError(RESTProviderName, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapBackendError(RESTProviderName, op, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, MapHTTPError(resp.StatusCode, readErrorMessage(data), RESTProviderName).WithOperation(op)
	}

	p.logger.Debug("generateContent completed",
		zap.String("operation", op),
		zap.String("model", model),
		zap.Int("bytes", len(data)))
	return data, nil
}
