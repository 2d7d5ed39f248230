package image

import (
	"strings"

	"github.com/BaSui01/charis/types"
)

// Chain 是按优先级排列的 Provider 列表，下标 0 最先尝试
type Chain []Provider

// ChainModels 每个 Provider 使用的模型，空值使用默认模型
type ChainModels struct {
	Native string
	REST   string
	Text   string
}

// textModelSetter is implemented by providers with a separate text model.
type textModelSetter interface {
	SetTextModel(model string)
}

// NewGeminiChain builds the default [native, rest] chain, configured with the
// same credential. Both providers share the limiter so the combined request
// rate stays bounded.
func NewGeminiChain(apiKey string, models ChainModels, opts ProviderOptions) (Chain, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, types.NewError(types.ErrCredentialMissing,
			"no API key configured, run `charis config set-key gemini <key>` or set GEMINI_API_KEY")
	}

	native := NewNativeProvider(opts)
	rest := NewRESTProvider(opts)
	chain := Chain{native, rest}

	modelFor := map[string]string{
		NativeProviderName: models.Native,
		RESTProviderName:   models.REST,
	}
	for _, p := range chain {
		if err := p.SetAPIKey(apiKey); err != nil {
			return nil, err
		}
		p.SetModel(modelFor[p.Name()])
		if s, ok := p.(textModelSetter); ok {
			s.SetTextModel(models.Text)
		}
	}
	return chain, nil
}

// Filter returns the providers that advertise capability, preserving order.
func (c Chain) Filter(capability Capability) Chain {
	out := make(Chain, 0, len(c))
	for _, p := range c {
		if p != nil && p.Supports(capability) {
			out = append(out, p)
		}
	}
	return out
}

// Names lists provider names in priority order.
func (c Chain) Names() []string {
	names := make([]string, 0, len(c))
	for _, p := range c {
		if p != nil {
			names = append(names, p.Name())
		}
	}
	return names
}
