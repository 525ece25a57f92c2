package infrastructure

import (
	"context"
	"time"

	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"bastion-server/internal/config"
	"bastion-server/internal/domain/billing"
	"bastion-server/internal/domain/chat"
	"bastion-server/internal/domain/files"
	"bastion-server/internal/domain/model"
	"bastion-server/internal/infrastructure/auth"
	"bastion-server/internal/infrastructure/cache"
	"bastion-server/internal/infrastructure/crontab"
	"bastion-server/internal/infrastructure/database"
	"bastion-server/internal/infrastructure/database/repository"
	"bastion-server/internal/infrastructure/inference"
	"bastion-server/internal/infrastructure/logger"
	"bastion-server/internal/infrastructure/paystack"
	"bastion-server/internal/infrastructure/storage"
)

// ProvideConfig returns the configuration loaded at startup, loading it on first use.
func ProvideConfig() (*config.Config, error) {
	if cfg := config.GetGlobal(); cfg != nil {
		return cfg, nil
	}
	return config.Load()
}

// ProvideDatabase opens the primary connection and applies migrations when AUTO_MIGRATE is set.
func ProvideDatabase(cfg *config.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(database.Config{
		DatabaseURL:    cfg.DatabaseDSN(),
		ReadReplicaURL: cfg.DBReadReplicaDSN,
		MaxIdle:        cfg.DBMaxIdleConns,
		MaxOpen:        cfg.DBMaxOpenConns,
		MaxLifetime:    cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		log.Info().Msg("Running database migrations...")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := database.AutoMigrate(ctx, db); err != nil {
			log.Error().Err(err).Msg("Failed to run database migrations")
			return nil, err
		}
		log.Info().Msg("Database migrations completed successfully")
	}
	return db, nil
}

// ProvideRedisCache connects to REDIS_URL. It returns nil when redis is not configured.
func ProvideRedisCache(cfg *config.Config, log zerolog.Logger) (*cache.RedisCache, error) {
	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL is not set; billing status cache and provisioning locks are process local")
		return nil, nil
	}
	return cache.NewRedisCache(context.Background(), cfg.RedisURL)
}

func ProvideStatusCache(redis *cache.RedisCache) billing.StatusCache {
	return cache.NewStatusCache(redis)
}

func ProvideBillingLocker(redis *cache.RedisCache) billing.Locker {
	return cache.NewBillingLocker(redis)
}

func ProvidePaymentGateway(cfg *config.Config) billing.Gateway {
	return paystack.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey, cfg.HTTPTimeout)
}

func ProvideObjectStorage(cfg *config.Config) (*storage.R2Storage, error) {
	return storage.NewR2Storage(context.Background(), cfg)
}

func ProvideObjectStore(store *storage.R2Storage) files.ObjectStore {
	return store
}

func ProvideModelBackend(registry *inference.Registry) chat.ModelBackend {
	return registry
}

func ProvideImageGenerator(registry *inference.Registry) chat.ImageGenerator {
	return registry
}

func ProvideProviderAvailability(registry *inference.Registry) model.ProviderAvailability {
	return registry
}

// ProvideTokenValidator returns nil when auth is disabled.
func ProvideTokenValidator(cfg *config.Config) (*auth.Validator, error) {
	if !cfg.EnableAuth {
		return nil, nil
	}
	return auth.NewValidator(context.Background(), cfg)
}

func ProvideCrontab(cfg *config.Config, service *billing.Service) *crontab.Crontab {
	return crontab.NewCrontab(service, cfg.PaymentReconcileIntervalMinutes, cfg.PaystackSecretKey != "")
}

// Infrastructure holds the dependencies the HTTP server checks for readiness.
type Infrastructure struct {
	DB        *gorm.DB
	Redis     *cache.RedisCache
	Storage   *storage.R2Storage
	Validator *auth.Validator
	Logger    zerolog.Logger
}

func NewInfrastructure(
	db *gorm.DB,
	redis *cache.RedisCache,
	objectStorage *storage.R2Storage,
	validator *auth.Validator,
	logger zerolog.Logger,
) *Infrastructure {
	return &Infrastructure{
		DB:        db,
		Redis:     redis,
		Storage:   objectStorage,
		Validator: validator,
		Logger:    logger,
	}
}

// Ready reports the first dependency that is not usable.
func (i *Infrastructure) Ready(ctx context.Context) map[string]string {
	checks := map[string]string{}
	if err := database.Ping(i.DB); err != nil {
		checks["database"] = err.Error()
	}
	if i.Redis != nil {
		if err := i.Redis.HealthCheck(ctx); err != nil {
			checks["redis"] = err.Error()
		}
	}
	if i.Storage != nil {
		if err := i.Storage.Health(ctx); err != nil {
			checks["storage"] = err.Error()
		}
	}
	if i.Validator != nil && !i.Validator.Ready() {
		checks["auth"] = "jwks not loaded"
	}
	return checks
}

// Close releases connections held by the infrastructure.
func (i *Infrastructure) Close() {
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			i.Logger.Error().Err(err).Msg("failed to close redis")
		}
	}
	if err := database.Close(i.DB); err != nil {
		i.Logger.Error().Err(err).Msg("failed to close database")
	}
}

// InfrastructureProvider provides all infrastructure dependencies
var InfrastructureProvider = wire.NewSet(
	// Config
	ProvideConfig,

	// Database
	ProvideDatabase,

	// Repositories
	repository.RepositoryProvider,

	// Cache
	ProvideRedisCache,
	ProvideStatusCache,
	ProvideBillingLocker,

	// Model providers
	inference.NewRegistry,
	ProvideModelBackend,
	ProvideImageGenerator,
	ProvideProviderAvailability,

	// Object storage
	ProvideObjectStorage,
	ProvideObjectStore,

	// Payments
	ProvidePaymentGateway,

	// Logger
	logger.GetLogger,

	// Auth
	ProvideTokenValidator,

	// Crontab for payment reconciliation
	ProvideCrontab,

	// Infrastructure struct
	NewInfrastructure,
)
