package image

import (
	"crypto/tls"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/charis/types"
)

func TestNewGeminiChain(t *testing.T) {
	chain, err := NewGeminiChain("key", ChainModels{REST: "rest-model", Text: "text-model"}, ProviderOptions{})
	require.NoError(t, err)
	require.Len(t, chain, 2)

	assert.Equal(t, []string{NativeProviderName, RESTProviderName}, chain.Names())
	assert.Equal(t, DefaultImageModel, chain[0].Model())
	assert.Equal(t, "rest-model", chain[1].Model())
	assert.Equal(t, "text-model", chain[1].(*RESTProvider).textModel)

	assert.Equal(t, []string{NativeProviderName}, chain.Filter(CapabilityUpscale).Names())
	assert.Equal(t, []string{NativeProviderName, RESTProviderName}, chain.Filter(CapabilityRemoveBackground).Names())
}

func TestNewGeminiChain_MissingKey(t *testing.T) {
	_, err := NewGeminiChain(" ", ChainModels{}, ProviderOptions{})
	assert.True(t, types.IsCode(err, types.ErrCredentialMissing))
}

func TestProviderOptions_HTTPClient(t *testing.T) {
	client := ProviderOptions{Timeout: 30 * time.Second}.httpClient()
	assert.Equal(t, 30*time.Second, client.Timeout)
	tr, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, uint16(tls.VersionTLS12), tr.TLSClientConfig.MinVersion)

	assert.Equal(t, DefaultTimeout, ProviderOptions{}.httpClient().Timeout)

	custom := &http.Client{}
	assert.Same(t, custom, ProviderOptions{HTTPClient: custom}.httpClient())
}
