package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"bastion-server/internal/utils/platformerrors"
)

const (
	ProviderOpenAI           = "openai"
	ProviderAnthropic        = "anthropic"
	ProviderGoogle           = "google"
	ProviderOpenAICompatible = "openai-compatible"
	ProviderAzure            = "azure"
	ProviderGateway          = "gateway"

	DefaultContextWindow = 128000
)

// Model is a selectable model from the catalog.
type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	ProviderID    string `json:"providerId"`
	ContextWindow int    `json:"contextWindow"`
	Image         bool   `json:"image"`
	Enabled       bool   `json:"enabled"`
	Default       bool   `json:"default,omitempty"`
}

// Key returns the registry address "providerId:id".
func (m Model) Key() string {
	return m.ProviderID + ":" + m.ID
}

// EffectiveContextWindow falls back to DefaultContextWindow for unset values.
func (m Model) EffectiveContextWindow() int {
	if m.ContextWindow <= 0 {
		return DefaultContextWindow
	}
	return m.ContextWindow
}

// MetadataKey is the provider metadata key a model's provider reports under by default.
func (m Model) MetadataKey() string {
	if m.ProviderID == ProviderAzure {
		return ProviderAzure
	}
	return ProviderOpenAI
}

// Selector identifies a model in a request. It accepts either {"id","providerId"} or a
// "provider:model" string.
type Selector struct {
	ID         string `json:"id"`
	ProviderID string `json:"providerId"`
}

func (s *Selector) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*s = Selector{}
		return nil
	}
	if strings.HasPrefix(trimmed, "\"") {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		parsed, err := ParseSelector(raw)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	}
	type alias Selector
	var obj alias
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*s = Selector{ID: strings.TrimSpace(obj.ID), ProviderID: strings.TrimSpace(obj.ProviderID)}
	return nil
}

// IsZero reports whether no model was requested.
func (s Selector) IsZero() bool {
	return s.ID == "" && s.ProviderID == ""
}

func (s Selector) String() string {
	if s.ProviderID == "" {
		return s.ID
	}
	return s.ProviderID + ":" + s.ID
}

// ParseSelector splits "provider:model" on the first colon. A bare model id leaves the provider
// empty so the catalog can resolve it.
func ParseSelector(raw string) (Selector, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Selector{}, fmt.Errorf("model selector is empty")
	}
	provider, id, found := strings.Cut(raw, ":")
	if !found {
		return Selector{ID: raw}, nil
	}
	provider = strings.TrimSpace(provider)
	id = strings.TrimSpace(id)
	if provider == "" || id == "" {
		return Selector{}, fmt.Errorf("invalid model selector %q", raw)
	}
	return Selector{ID: id, ProviderID: provider}, nil
}

// ProviderAvailability reports whether a provider has the credentials it needs.
type ProviderAvailability interface {
	IsProviderEnabled(providerID string) bool
}

// CatalogService resolves selectors against the configured model list.
type CatalogService struct {
	models       []Model
	availability ProviderAvailability
}

func NewCatalogService(models []Model, availability ProviderAvailability) *CatalogService {
	copied := make([]Model, len(models))
	copy(copied, models)
	return &CatalogService{models: copied, availability: availability}
}

// All returns every catalog entry regardless of availability.
func (s *CatalogService) All() []Model {
	result := make([]Model, len(s.models))
	copy(result, s.models)
	return result
}

// ListEnabled returns enabled models whose provider is configured.
func (s *CatalogService) ListEnabled() []Model {
	result := make([]Model, 0, len(s.models))
	for _, m := range s.models {
		if s.usable(m) {
			result = append(result, m)
		}
	}
	return result
}

// Default returns the first usable model flagged default, or else the first usable model.
func (s *CatalogService) Default() (Model, bool) {
	enabled := s.ListEnabled()
	for _, m := range enabled {
		if m.Default && !m.Image {
			return m, true
		}
	}
	for _, m := range enabled {
		if !m.Image {
			return m, true
		}
	}
	return Model{}, false
}

// Resolve finds a usable model for the selector. An empty selector yields the default model.
func (s *CatalogService) Resolve(ctx context.Context, sel Selector) (Model, error) {
	if sel.IsZero() {
		if m, ok := s.Default(); ok {
			return m, nil
		}
		return Model{}, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "no model is available", nil, "860512f1-7bbd-4464-a6d2-16d0a60f4493")
	}

	for _, m := range s.models {
		if m.ID != sel.ID || (sel.ProviderID != "" && m.ProviderID != sel.ProviderID) {
			continue
		}
		if !s.usable(m) {
			return Model{}, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "model is not available", nil, "ca8aae66-15b7-4091-9c5a-0c352b786415", map[string]any{"model": sel.String()})
		}
		return m, nil
	}
	return Model{}, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "model not found", nil, "7a5cb2d6-e600-40ad-9bdb-23952e1a7138", map[string]any{"model": sel.String()})
}

func (s *CatalogService) usable(m Model) bool {
	if !m.Enabled {
		return false
	}
	if s.availability == nil {
		return true
	}
	return s.availability.IsProviderEnabled(m.ProviderID)
}
