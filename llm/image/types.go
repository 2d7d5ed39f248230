package image

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/BaSui01/charis/types"
)

// Logical operation names used in errors, logs, spans and metrics.
const (
	OpGenerate         = "generate"
	OpEdit             = "edit"
	OpCaption          = "caption"
	OpUpscale          = "upscale"
	OpRemoveBackground = "remove-background"
	OpComplete         = "complete"
)

// Capability 可选能力
type Capability string

const (
	CapabilityUpscale          Capability = "upscale"
	CapabilityRemoveBackground Capability = "remove-background"
)

// Provider 定义了图像提供者接口.
// Generate / Edit / Caption / Complete 为必备能力，Upscale 与
// RemoveBackground 为可选能力，通过 Supports 查询。
type Provider interface {
	// Name 返回稳定的提供者名称
	Name() string

	// SetModel 设置模型，空值重置为默认模型
	SetModel(model string)

	// Model 返回当前模型
	Model() string

	// SetAPIKey 使用凭证（重新）初始化后端客户端，必须在任何操作之前调用
	SetAPIKey(key string) error

	// Generate 从文本提示生成图像，数量不足时返回已生成的部分
	Generate(ctx context.Context, req *GenerateRequest) ([][]byte, error)

	// Edit 根据指令修改输入图像
	Edit(ctx context.Context, req *EditRequest) ([][]byte, error)

	// Caption 为图像生成一句描述
	Caption(ctx context.Context, req *CaptionRequest) (string, error)

	// Complete 纯文本补全（提示词改写等）
	Complete(ctx context.Context, req *TextRequest) (string, error)

	// Supports 报告是否提供某项可选能力
	Supports(capability Capability) bool
}

// Upscaler 是可选的放大能力.
type Upscaler interface {
	Upscale(ctx context.Context, req *UpscaleRequest) ([]byte, error)
}

// BackgroundRemover 是可选的去背景能力.
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, req *RemoveBackgroundRequest) ([]byte, error)
}

// AsUpscaler returns p as an Upscaler when it advertises the capability.
func AsUpscaler(p Provider) (Upscaler, bool) {
	if p == nil || !p.Supports(CapabilityUpscale) {
		return nil, false
	}
	u, ok := p.(Upscaler)
	return u, ok
}

// AsBackgroundRemover returns p as a BackgroundRemover when it advertises the capability.
func AsBackgroundRemover(p Provider) (BackgroundRemover, bool) {
	if p == nil || !p.Supports(CapabilityRemoveBackground) {
		return nil, false
	}
	r, ok := p.(BackgroundRemover)
	return r, ok
}

// =============================================================================
// 📐 尺寸与格式
// =============================================================================

// Size 目标尺寸
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// ParseSize parses WIDTHxHEIGHT.
func ParseSize(value string) (*Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(value)), "x")
	if !ok {
		return nil, types.Errorf(types.ErrInvalidRequest, "invalid size %q, expected WIDTHxHEIGHT", value)
	}
	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return nil, types.Errorf(types.ErrInvalidRequest, "invalid size %q, expected WIDTHxHEIGHT", value)
	}
	return &Size{Width: width, Height: height}, nil
}

// ParseAspect parses an aspect ratio such as "16:9" and returns it normalized.
func ParseAspect(value string) (string, error) {
	w, h, ok := strings.Cut(strings.TrimSpace(value), ":")
	width, errW := strconv.Atoi(strings.TrimSpace(w))
	height, errH := strconv.Atoi(strings.TrimSpace(h))
	if !ok || errW != nil || errH != nil || width <= 0 || height <= 0 {
		return "", types.Errorf(types.ErrInvalidRequest, "invalid aspect ratio %q, expected W:H", value)
	}
	return fmt.Sprintf("%d:%d", width, height), nil
}

// Format 输出格式
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPG  Format = "jpg"
	FormatWEBP Format = "webp"
)

// ParseFormat normalizes a user supplied format. Empty input yields "".
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return "", nil
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPG, nil
	case "webp":
		return FormatWEBP, nil
	default:
		return "", types.Errorf(types.ErrInvalidRequest, "unsupported format %q (png|jpg|webp)", value)
	}
}

// Valid reports whether f is empty or one of the supported formats.
func (f Format) Valid() bool {
	switch f {
	case "", FormatPNG, FormatJPG, FormatWEBP:
		return true
	}
	return false
}

// =============================================================================
// 📨 请求模型
// =============================================================================

// GenerateRequest 代表图像生成请求.
// Size and Aspect become prompt hints. Format and Quality are not sent to the
// backend: Format only picks the saved file extension and Quality is recorded
// in history. Images are written as returned, without conversion.
type GenerateRequest struct {
	Prompt  string         `json:"prompt"`
	Count   int            `json:"count"`
	Size    *Size          `json:"size,omitempty"`
	Aspect  string         `json:"aspect,omitempty"`
	Format  Format         `json:"format,omitempty"`
	Quality *int           `json:"quality,omitempty"`
	Seed    *int64         `json:"seed,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// Validate checks the request invariants.
func (r *GenerateRequest) Validate() error {
	if r == nil || strings.TrimSpace(r.Prompt) == "" {
		return types.NewError(types.ErrInvalidRequest, "prompt is required").WithOperation(OpGenerate)
	}
	if r.Count < 1 {
		return types.Errorf(types.ErrInvalidRequest, "count must be at least 1, got %d", r.Count).WithOperation(OpGenerate)
	}
	if r.Aspect != "" {
		if _, err := ParseAspect(r.Aspect); err != nil {
			return types.Errorf(types.ErrInvalidRequest, "invalid aspect ratio %q, expected W:H", r.Aspect).
				WithOperation(OpGenerate)
		}
	}
	return validateCommon(OpGenerate, r.Size, r.Format, r.Quality)
}

// promptText is the prompt with its size or aspect hint. An explicit size
// wins over the aspect ratio.
func (r *GenerateRequest) promptText() string {
	if r.Size == nil && r.Aspect != "" {
		return r.Prompt + fmt.Sprintf(" Aspect ratio: %s.", r.Aspect)
	}
	return r.Prompt + sizeHint(r.Size)
}

// EditRequest 代表图像编辑请求.
type EditRequest struct {
	Images      [][]byte       `json:"-"`
	Instruction string         `json:"instruction"`
	Mask        []byte         `json:"-"`
	Size        *Size          `json:"size,omitempty"`
	Format      Format         `json:"format,omitempty"`
	Quality     *int           `json:"quality,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

// Validate checks the request invariants.
func (r *EditRequest) Validate() error {
	if r == nil || len(r.Images) == 0 {
		return types.NewError(types.ErrInvalidRequest, "at least one input image is required").WithOperation(OpEdit)
	}
	for i, img := range r.Images {
		if len(img) == 0 {
			return types.Errorf(types.ErrInvalidRequest, "input image %d is empty", i+1).WithOperation(OpEdit)
		}
	}
	if strings.TrimSpace(r.Instruction) == "" {
		return types.NewError(types.ErrInvalidRequest, "instruction is required").WithOperation(OpEdit)
	}
	return validateCommon(OpEdit, r.Size, r.Format, r.Quality)
}

// CaptionRequest 代表图像描述请求.
type CaptionRequest struct {
	Image []byte `json:"-"`
}

// Validate checks the request invariants.
func (r *CaptionRequest) Validate() error {
	if r == nil || len(r.Image) == 0 {
		return types.NewError(types.ErrInvalidRequest, "an input image is required").WithOperation(OpCaption)
	}
	return nil
}

// UpscaleRequest 代表放大请求.
type UpscaleRequest struct {
	Image  []byte `json:"-"`
	Factor int    `json:"factor"`
}

// Validate checks the request invariants.
func (r *UpscaleRequest) Validate() error {
	if r == nil || len(r.Image) == 0 {
		return types.NewError(types.ErrInvalidRequest, "an input image is required").WithOperation(OpUpscale)
	}
	if r.Factor < 1 {
		return types.Errorf(types.ErrInvalidRequest, "upscale factor must be at least 1, got %d", r.Factor).WithOperation(OpUpscale)
	}
	return nil
}

// RemoveBackgroundRequest 代表去背景请求.
type RemoveBackgroundRequest struct {
	Image []byte `json:"-"`
}

// Validate checks the request invariants.
func (r *RemoveBackgroundRequest) Validate() error {
	if r == nil || len(r.Image) == 0 {
		return types.NewError(types.ErrInvalidRequest, "an input image is required").WithOperation(OpRemoveBackground)
	}
	return nil
}

// TextRequest 代表纯文本补全请求.
type TextRequest struct {
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
}

// Validate checks the request invariants.
func (r *TextRequest) Validate() error {
	if r == nil || strings.TrimSpace(r.Prompt) == "" {
		return types.NewError(types.ErrInvalidRequest, "prompt is required").WithOperation(OpComplete)
	}
	return nil
}

func validateCommon(op string, size *Size, format Format, quality *int) error {
	if size != nil && (size.Width <= 0 || size.Height <= 0) {
		return types.Errorf(types.ErrInvalidRequest, "size must be positive, got %s", size).WithOperation(op)
	}
	if !format.Valid() {
		return types.Errorf(types.ErrInvalidRequest, "unsupported format %q", format).WithOperation(op)
	}
	if quality != nil && (*quality < 0 || *quality > 100) {
		return types.Errorf(types.ErrInvalidRequest, "quality must be between 0 and 100, got %d", *quality).WithOperation(op)
	}
	return nil
}

// sizeHint renders the optional target size as an instruction suffix.
func sizeHint(size *Size) string {
	if size == nil {
		return ""
	}
	return fmt.Sprintf(" Target output size: %d by %d pixels.", size.Width, size.Height)
}
