package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bastion-server/internal/config"
	domainmodel "bastion-server/internal/domain/model"
)

func TestNormalizeAzureBaseURL(t *testing.T) {
	tests := []struct {
		name     string
		resource string
		baseURL  string
		want     string
	}{
		{name: "explicit base url wins", resource: "ignored", baseURL: "https://proxy.example.com/openai/", want: "https://proxy.example.com/openai"},
		{name: "bare resource name", resource: "my-resource", want: "https://my-resource.openai.azure.com/openai"},
		{name: "resource url", resource: "https://my-resource.openai.azure.com", want: "https://my-resource.openai.azure.com/openai"},
		{name: "resource url already rooted", resource: "https://my-resource.openai.azure.com/openai/", want: "https://my-resource.openai.azure.com/openai"},
		{name: "nothing configured", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAzureBaseURL(tt.resource, tt.baseURL))
		})
	}
}

func TestIsAzureV1(t *testing.T) {
	for _, version := range []string{"", "v1", "V1", "none", "skip", "omit", "ga", " ga "} {
		assert.True(t, IsAzureV1(version), version)
	}
	for _, version := range []string{"2024-10-21", "2025-01-01-preview"} {
		assert.False(t, IsAzureV1(version), version)
	}
}

func TestBuildProviderSettingsRequiresCompleteCredentials(t *testing.T) {
	cfg := &config.Config{
		OpenAIAPIKey:           "sk-openai",
		OpenAICompatibleAPIKey: "sk-compat",
		AzureAPIKey:            "az-key",
	}
	settings := BuildProviderSettings(cfg)

	require.Contains(t, settings, domainmodel.ProviderOpenAI)
	assert.Equal(t, "https://api.openai.com/v1", settings[domainmodel.ProviderOpenAI].BaseURL)
	assert.Equal(t, "Bearer sk-openai", settings[domainmodel.ProviderOpenAI].Headers["Authorization"])
	assert.NotContains(t, settings, domainmodel.ProviderOpenAICompatible, "base url is required")
	assert.NotContains(t, settings, domainmodel.ProviderAzure, "resource or base url is required")
	assert.NotContains(t, settings, domainmodel.ProviderAnthropic)
	assert.NotContains(t, settings, domainmodel.ProviderGoogle)
	assert.NotContains(t, settings, domainmodel.ProviderGateway)
}

func TestBuildProviderSettingsAzureModes(t *testing.T) {
	t.Run("v1", func(t *testing.T) {
		settings := BuildProviderSettings(&config.Config{AzureAPIKey: "az", AzureResourceName: "res", AzureAPIVersion: "v1"})
		azure := settings[domainmodel.ProviderAzure]
		assert.Equal(t, "https://res.openai.azure.com/openai/v1", azure.BaseURL)
		assert.False(t, azure.Deployment)
		assert.Equal(t, "az", azure.Headers["api-key"])
	})
	t.Run("deployment", func(t *testing.T) {
		settings := BuildProviderSettings(&config.Config{AzureAPIKey: "az", AzureBaseURL: "https://proxy.example.com/openai", AzureAPIVersion: "2024-10-21"})
		azure := settings[domainmodel.ProviderAzure]
		assert.Equal(t, "https://proxy.example.com/openai", azure.BaseURL)
		assert.True(t, azure.Deployment)
		assert.Equal(t, "2024-10-21", azure.APIVersion)

		client := NewChatCompletionClient(nil, azure)
		assert.Equal(t, "https://proxy.example.com/openai/deployments/gpt-4o/chat/completions?api-version=2024-10-21", client.endpoint("gpt-4o", "/chat/completions"))
	})
}

func TestBuildProviderSettingsAllProviders(t *testing.T) {
	settings := BuildProviderSettings(&config.Config{
		OpenAIAPIKey:            "a",
		AnthropicAPIKey:         "b",
		GoogleAPIKey:            "c",
		OpenAICompatibleAPIKey:  "d",
		OpenAICompatibleBaseURL: "http://localhost:11434/v1",
		AzureAPIKey:             "e",
		AzureResourceName:       "res",
		GatewayAPIKey:           "f",
	})
	assert.Len(t, settings, 6)
	assert.Equal(t, "b", settings[domainmodel.ProviderAnthropic].Headers["X-API-Key"])
	assert.Equal(t, "anthropic", settings[domainmodel.ProviderAnthropic].MetadataKey)

	registry := NewRegistryFromSettings(settings, 0)
	for _, id := range []string{"openai", "anthropic", "google", "openai-compatible", "azure", "gateway"} {
		assert.True(t, registry.IsProviderEnabled(id), id)
	}
	assert.False(t, registry.IsProviderEnabled("mistral"))
}
