package billing

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bastion-server/internal/infrastructure/logger"
	"bastion-server/internal/infrastructure/metrics"
	"bastion-server/internal/utils/platformerrors"
)

const (
	msgNotConfigured  = "Server not configured (missing PAYSTACK_SECRET_KEY)."
	msgSignInRequired = "Please sign in to subscribe."
	msgMissingRef     = "Missing reference"
	msgInvalidSig     = "Invalid signature"
)

// Config holds the billing settings.
type Config struct {
	SecretKey      string
	SiteURL        string
	PlanCode       string
	StatusCacheTTL time.Duration
}

// Customer is the signed-in user starting a checkout.
type Customer struct {
	ID    string
	Email string
}

type Service struct {
	repo    Repository
	gateway Gateway
	cache   StatusCache
	locker  Locker
	cfg     Config
	log     zerolog.Logger
	now     func() time.Time
}

// NewService builds the billing service. cache and locker may be nil.
func NewService(repo Repository, gateway Gateway, cache StatusCache, locker Locker, cfg Config) *Service {
	if cache == nil {
		cache = noopCache{}
	}
	if locker == nil {
		locker = noopLocker{}
	}
	return &Service{
		repo:    repo,
		gateway: gateway,
		cache:   cache,
		locker:  locker,
		cfg:     cfg,
		log:     logger.Component("billing"),
		now:     time.Now,
	}
}

func (s *Service) configured(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.SecretKey) == "" {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, msgNotConfigured, nil, "fefab964-b474-440d-9c07-1d33b4b0e7c7")
	}
	return nil
}

// Initialize starts a premium checkout and returns the gateway response unchanged.
func (s *Service) Initialize(ctx context.Context, customer Customer) (map[string]any, error) {
	if err := s.configured(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(customer.Email) == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeUnauthorized, msgSignInRequired, nil, "1e61ef4e-8ee0-4317-a0c3-b088eac90d70")
	}

	siteURL := strings.TrimRight(s.cfg.SiteURL, "/")
	metadata := map[string]any{
		"plan":    PlanName,
		"product": ProductName,
		"user_id": customer.ID,
	}
	req := InitializeRequest{
		Email:    customer.Email,
		Amount:   strconv.FormatInt(ExpectedAmount(), 10),
		Currency: Currency,
		Channels: Channels,
		Metadata: metadata,
		Plan:     s.cfg.PlanCode,
	}
	if siteURL != "" {
		metadata["cancel_action"] = siteURL + "/pricing"
		req.CallbackURL = siteURL + "/payments/callback"
	}

	resp, err := s.gateway.InitializeTransaction(ctx, req)
	if err != nil {
		return nil, s.gatewayError(ctx, err, "Failed to create transaction")
	}
	if !resp.Status {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, nonEmpty(resp.Message, "Failed to create transaction"), nil, "5054f671-b9e2-4fef-a5b6-87abe5586775")
	}

	if reference := resp.Data.Reference; reference != "" {
		payment := &Payment{
			UserID:    customer.ID,
			Reference: reference,
			Amount:    ExpectedAmount(),
			Currency:  Currency,
			Status:    PaymentPending,
			Metadata:  map[string]any{"provider": ProviderPaystack, "plan": PlanName},
		}
		if err := s.repo.CreatePayment(ctx, payment); err != nil {
			s.log.Error().Err(err).Str("reference", reference).Msg("failed to record pending payment")
		} else {
			metrics.RecordPayment("initialize", PaymentPending)
		}
	}
	return resp.Raw, nil
}

// Verify looks a transaction up and reports whether the paid amount matches the plan price.
func (s *Service) Verify(ctx context.Context, reference string) (map[string]any, error) {
	if err := s.configured(ctx); err != nil {
		return nil, err
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, msgMissingRef, nil, "76473bf4-7146-438c-b6bb-afca28d6179f")
	}

	resp, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, s.gatewayError(ctx, err, "Verification failed")
	}

	out := make(map[string]any, len(resp.Raw)+1)
	for k, v := range resp.Raw {
		out[k] = v
	}
	out["amountValid"] = rawAmountValid(resp.Raw)
	return out, nil
}

// rawAmountValid is true when data.amount is not a number or equals the plan price.
func rawAmountValid(raw map[string]any) bool {
	data, _ := raw["data"].(map[string]any)
	switch amount := data["amount"].(type) {
	case float64:
		return amount == float64(ExpectedAmount())
	case json.Number:
		n, err := amount.Int64()
		return err != nil || n == ExpectedAmount()
	default:
		return true
	}
}

type webhookEvent struct {
	Event string          `json:"event"`
	Data  TransactionData `json:"data"`
}

// HandleWebhook authenticates and applies a gateway event. A returned error makes the gateway
// retry the delivery.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if err := s.configured(ctx); err != nil {
		return err
	}
	if !VerifySignature(s.cfg.SecretKey, body, signature) {
		metrics.RecordWebhookEvent("unknown", "invalid_signature")
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeUnauthorized, msgInvalidSig, nil, "d8aed54c-1c07-402a-9704-fd843506524d")
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		metrics.RecordWebhookEvent("unknown", "invalid_payload")
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "invalid webhook payload", err, "31ffa929-a84e-4ceb-acd0-b9cff86953c6")
	}

	log := s.log.With().Str("event", event.Event).Str("reference", event.Data.Reference).Logger()
	switch event.Event {
	case EventChargeSuccess:
		if err := s.handleChargeSuccess(ctx, event.Data); err != nil {
			metrics.RecordWebhookEvent(event.Event, "error")
			log.Error().Err(err).Msg("failed to provision charge")
			return err
		}
	case "subscription.create", "subscription.disable", "subscription.not_renew",
		"invoice.create", "invoice.update", "invoice.payment_failed":
		log.Info().Str("status", event.Data.Status).Msg("subscription lifecycle event")
	default:
		log.Debug().Msg("ignoring webhook event")
	}
	metrics.RecordWebhookEvent(event.Event, "ok")
	return nil
}

func (s *Service) handleChargeSuccess(ctx context.Context, data TransactionData) error {
	amount, ok := data.AmountSubunit()
	userID := data.UserID()
	if !ok || amount != ExpectedAmount() || userID == "" || data.Reference == "" {
		s.log.Warn().
			Str("reference", data.Reference).
			Int64("amount", amount).
			Bool("has_user", userID != "").
			Msg("charge does not match the premium plan, not provisioning")
		return nil
	}

	currency := data.Currency
	if currency == "" {
		currency = Currency
	}
	_, err := s.provision(ctx, Grant{
		UserID:    userID,
		Reference: data.Reference,
		Amount:    amount,
		Currency:  currency,
		Channel:   data.Channel,
		PlanCode:  s.cfg.PlanCode,
		Metadata:  map[string]any{"provider": ProviderPaystack, "raw": map[string]any{"event": EventChargeSuccess}},
	}, "webhook")
	return err
}

// provision grants premium for a payment reference at most once.
func (s *Service) provision(ctx context.Context, grant Grant, source string) (bool, error) {
	unlock, err := s.locker.Lock(ctx, "billing:provision:"+grant.Reference)
	if err != nil {
		return false, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "payment is being provisioned", err, "14a1caf1-1b6b-4e30-a1dc-20bde6ef6971")
	}
	defer unlock()

	provisioned, err := s.repo.Provision(ctx, grant)
	if err != nil {
		metrics.RecordPayment(source, "error")
		return false, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to provision premium")
	}
	s.cache.Delete(ctx, grant.UserID)
	if provisioned {
		metrics.RecordPayment(source, PaymentSuccess)
		s.log.Info().Str("user_id", grant.UserID).Str("reference", grant.Reference).Str("source", source).Msg("premium provisioned")
	}
	return provisioned, nil
}

// Status returns the plan of a user. Anonymous callers are never premium.
func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	if userID == "" {
		return &Status{}, nil
	}
	if cached, ok := s.cache.Get(ctx, userID); ok {
		return cached, nil
	}

	row, err := s.repo.FindUserBilling(ctx, userID)
	if err != nil {
		if platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
			status := Status{}
			s.cache.Set(ctx, userID, status, s.cfg.StatusCacheTTL)
			return &status, nil
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load billing status")
	}

	status := Status{Premium: row.Status == StatusPremium, Plan: row.PlanCode}
	s.cache.Set(ctx, userID, status, s.cfg.StatusCacheTTL)
	return &status, nil
}

func (s *Service) gatewayError(ctx context.Context, err error, fallback string) error {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, nonEmpty(gwErr.Message, fallback), err, "0bfac51c-5ad2-40fe-9c03-455b2fcd535e")
	}
	return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, fallback)
}

func nonEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
