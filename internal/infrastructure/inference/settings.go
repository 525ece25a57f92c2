package inference

import (
	"fmt"
	"net/url"
	"strings"

	"bastion-server/internal/config"
	domainmodel "bastion-server/internal/domain/model"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
	googleBaseURL    = "https://generativelanguage.googleapis.com/v1beta/openai"
	gatewayBaseURL   = "https://ai-gateway.vercel.sh/v1"
)

// ProviderSettings is everything needed to address one provider over the OpenAI wire format.
type ProviderSettings struct {
	ID      string
	BaseURL string
	APIKey  string
	// Headers carries the authentication headers of the provider.
	Headers map[string]string
	// MetadataKey is the key provider metadata is reported under.
	MetadataKey string
	// Deployment addresses models as Azure deployments with an api-version query.
	Deployment bool
	APIVersion string
}

// BuildProviderSettings returns the settings of every provider whose credentials are complete.
func BuildProviderSettings(cfg *config.Config) map[string]ProviderSettings {
	settings := map[string]ProviderSettings{}

	if key := strings.TrimSpace(cfg.OpenAIAPIKey); key != "" {
		settings[domainmodel.ProviderOpenAI] = ProviderSettings{
			ID:          domainmodel.ProviderOpenAI,
			BaseURL:     nonEmpty(cfg.OpenAIBaseURL, "https://api.openai.com/v1"),
			APIKey:      key,
			Headers:     bearer(key),
			MetadataKey: "openai",
		}
	}
	if key := strings.TrimSpace(cfg.AnthropicAPIKey); key != "" {
		headers := bearer(key)
		headers["X-API-Key"] = key
		headers["Anthropic-Version"] = anthropicVersion
		settings[domainmodel.ProviderAnthropic] = ProviderSettings{
			ID:          domainmodel.ProviderAnthropic,
			BaseURL:     anthropicBaseURL,
			APIKey:      key,
			Headers:     headers,
			MetadataKey: "anthropic",
		}
	}
	if key := strings.TrimSpace(cfg.GoogleAPIKey); key != "" {
		settings[domainmodel.ProviderGoogle] = ProviderSettings{
			ID:          domainmodel.ProviderGoogle,
			BaseURL:     googleBaseURL,
			APIKey:      key,
			Headers:     bearer(key),
			MetadataKey: "google",
		}
	}
	if key, base := strings.TrimSpace(cfg.OpenAICompatibleAPIKey), strings.TrimSpace(cfg.OpenAICompatibleBaseURL); key != "" && base != "" {
		settings[domainmodel.ProviderOpenAICompatible] = ProviderSettings{
			ID:          domainmodel.ProviderOpenAICompatible,
			BaseURL:     base,
			APIKey:      key,
			Headers:     bearer(key),
			MetadataKey: "openaiCompatible",
		}
	}
	if key := strings.TrimSpace(cfg.AzureAPIKey); key != "" {
		if base := NormalizeAzureBaseURL(cfg.AzureResourceName, cfg.AzureBaseURL); base != "" {
			s := ProviderSettings{
				ID:          domainmodel.ProviderAzure,
				APIKey:      key,
				Headers:     map[string]string{"api-key": key},
				MetadataKey: "azure",
			}
			if IsAzureV1(cfg.AzureAPIVersion) {
				s.BaseURL = base + "/v1"
			} else {
				s.BaseURL = base
				s.Deployment = true
				s.APIVersion = strings.TrimSpace(cfg.AzureAPIVersion)
			}
			settings[domainmodel.ProviderAzure] = s
		}
	}
	if key := strings.TrimSpace(cfg.GatewayAPIKey); key != "" {
		settings[domainmodel.ProviderGateway] = ProviderSettings{
			ID:          domainmodel.ProviderGateway,
			BaseURL:     gatewayBaseURL,
			APIKey:      key,
			Headers:     bearer(key),
			MetadataKey: "gateway",
		}
	}
	return settings
}

// NormalizeAzureBaseURL returns the "/openai" root of an Azure OpenAI resource. An explicit base
// URL wins; a resource given as a URL gets "/openai" appended once; a bare resource name becomes
// https://{name}.openai.azure.com/openai.
func NormalizeAzureBaseURL(resourceName, baseURL string) string {
	if base := strings.TrimRight(strings.TrimSpace(baseURL), "/"); base != "" {
		return base
	}
	resource := strings.TrimRight(strings.TrimSpace(resourceName), "/")
	if resource == "" {
		return ""
	}
	if u, err := url.Parse(resource); err == nil && u.Scheme != "" && u.Host != "" {
		if strings.HasSuffix(resource, "/openai") {
			return resource
		}
		return resource + "/openai"
	}
	return fmt.Sprintf("https://%s.openai.azure.com/openai", resource)
}

// IsAzureV1 reports whether the configured api version selects the v1 (OpenAI shaped) API.
func IsAzureV1(apiVersion string) bool {
	switch strings.ToLower(strings.TrimSpace(apiVersion)) {
	case "", "v1", "none", "skip", "omit", "ga":
		return true
	default:
		return false
	}
}

func bearer(key string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + key}
}

func nonEmpty(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
