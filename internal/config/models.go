package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"bastion-server/internal/infrastructure/logger"
)

const (
	DefaultModelsConfigFile = "config/models.yml"
	DefaultContextWindow    = 128000
)

// ModelEntry is one selectable model from the catalog file.
type ModelEntry struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Provider      string `yaml:"provider"`
	ProviderID    string `yaml:"providerId"`
	ContextWindow int    `yaml:"contextWindow"`
	Image         bool   `yaml:"image"`
	Enabled       bool   `yaml:"enabled"`
	Default       bool   `yaml:"default"`
}

type modelCatalogDocument struct {
	Models []modelCatalogEntry `yaml:"models"`
}

type modelCatalogEntry struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Provider      string `yaml:"provider"`
	ProviderID    string `yaml:"providerId"`
	ContextWindow int    `yaml:"contextWindow"`
	Image         bool   `yaml:"image"`
	Enabled       *bool  `yaml:"enabled"`
	Default       bool   `yaml:"default"`
}

// LoadModelCatalog parses the yaml model catalog at path.
func LoadModelCatalog(path string) ([]ModelEntry, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultModelsConfigFile
	}

	log := logger.GetLogger()
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read model catalog %q: %w", cleanPath, err)
	}
	log.Info().Str("path", cleanPath).Msg("loading model catalog")

	return ParseModelCatalog(data)
}

// ParseModelCatalog decodes catalog yaml and applies defaults.
func ParseModelCatalog(data []byte) ([]ModelEntry, error) {
	var doc modelCatalogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}
	if len(doc.Models) == 0 {
		return nil, errors.New("model catalog has no models defined")
	}

	seen := make(map[string]struct{}, len(doc.Models))
	result := make([]ModelEntry, 0, len(doc.Models))
	for idx, entry := range doc.Models {
		id := strings.TrimSpace(entry.ID)
		providerID := strings.TrimSpace(entry.ProviderID)
		if id == "" || providerID == "" {
			return nil, fmt.Errorf("models[%d]: id and providerId are required", idx)
		}
		key := providerID + ":" + id
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("models[%d]: duplicate model %s", idx, key)
		}
		seen[key] = struct{}{}

		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		contextWindow := entry.ContextWindow
		if contextWindow <= 0 {
			contextWindow = DefaultContextWindow
		}
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			name = id
		}

		result = append(result, ModelEntry{
			ID:            id,
			Name:          name,
			Provider:      strings.TrimSpace(entry.Provider),
			ProviderID:    providerID,
			ContextWindow: contextWindow,
			Image:         entry.Image,
			Enabled:       enabled,
			Default:       entry.Default,
		})
	}
	return result, nil
}
