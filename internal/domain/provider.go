package domain

import (
	"github.com/google/wire"

	"bastion-server/internal/config"
	"bastion-server/internal/domain/billing"
	"bastion-server/internal/domain/chat"
	"bastion-server/internal/domain/files"
	"bastion-server/internal/domain/model"
)

// ServiceProvider provides all domain services
var ServiceProvider = wire.NewSet(
	// Model catalog
	ProvideCatalogService,

	// Files
	files.NewService,
	ProvideFileStore,

	// Chat
	ProvideChatConfig,
	chat.NewService,

	// Billing
	ProvideBillingConfig,
	billing.NewService,
)

func ProvideCatalogService(cfg *config.Config, availability model.ProviderAvailability) *model.CatalogService {
	return model.NewCatalogService(ModelsFromConfig(cfg.Models), availability)
}

// ModelsFromConfig converts catalog file entries to domain models.
func ModelsFromConfig(entries []config.ModelEntry) []model.Model {
	models := make([]model.Model, 0, len(entries))
	for _, entry := range entries {
		models = append(models, model.Model{
			ID:            entry.ID,
			Name:          entry.Name,
			Provider:      entry.Provider,
			ProviderID:    entry.ProviderID,
			ContextWindow: entry.ContextWindow,
			Image:         entry.Image,
			Enabled:       entry.Enabled,
			Default:       entry.Default,
		})
	}
	return models
}

func ProvideFileStore(service *files.Service) chat.FileStore {
	return service
}

func ProvideChatConfig(cfg *config.Config) chat.ServiceConfig {
	return chat.ServiceConfig{
		TitleModel:            cfg.TitleModel,
		RelatedQuestionsModel: cfg.RelatedQuestionsModel,
	}
}

func ProvideBillingConfig(cfg *config.Config) billing.Config {
	return billing.Config{
		SecretKey:      cfg.PaystackSecretKey,
		SiteURL:        cfg.SiteURL,
		PlanCode:       cfg.PaystackPlanCodeKES600,
		StatusCacheTTL: cfg.BillingStatusCacheTTL,
	}
}
