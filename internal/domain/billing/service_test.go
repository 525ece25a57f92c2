package billing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bastion-server/internal/utils/platformerrors"
)

const testSecret = "sk_test_secret"

type memoryRepository struct {
	mu       sync.Mutex
	payments map[string]*Payment
	billing  map[string]*UserBilling
	failErr  error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{payments: map[string]*Payment{}, billing: map[string]*UserBilling{}}
}

func (r *memoryRepository) CreatePayment(_ context.Context, payment *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[payment.Reference]; ok {
		return nil
	}
	copied := *payment
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	r.payments[payment.Reference] = &copied
	return nil
}

func (r *memoryRepository) UpdatePaymentStatus(_ context.Context, reference, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.payments[reference]; ok {
		p.Status = status
	}
	return nil
}

func (r *memoryRepository) ListPendingPayments(_ context.Context, createdBefore time.Time, limit int) ([]*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Payment
	for _, p := range r.payments {
		if p.Status == PaymentPending && p.CreatedAt.Before(createdBefore) && len(out) < limit {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memoryRepository) AbandonPendingPayments(_ context.Context, createdBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.payments {
		if p.Status == PaymentPending && p.CreatedAt.Before(createdBefore) {
			p.Status = PaymentAbandoned
			n++
		}
	}
	return n, nil
}

func (r *memoryRepository) Provision(_ context.Context, grant Grant) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return false, r.failErr
	}
	if p, ok := r.payments[grant.Reference]; ok && p.Status == PaymentSuccess {
		return false, nil
	}
	r.payments[grant.Reference] = &Payment{
		UserID:    grant.UserID,
		Reference: grant.Reference,
		Amount:    grant.Amount,
		Currency:  grant.Currency,
		Status:    PaymentSuccess,
		Channel:   grant.Channel,
		Metadata:  grant.Metadata,
	}
	var plan *string
	if grant.PlanCode != "" {
		plan = &grant.PlanCode
	}
	r.billing[grant.UserID] = &UserBilling{UserID: grant.UserID, Status: StatusPremium, Provider: ProviderPaystack, PlanCode: plan}
	return true, nil
}

func (r *memoryRepository) FindUserBilling(ctx context.Context, userID string) (*UserBilling, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return nil, r.failErr
	}
	row, ok := r.billing[userID]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "billing not found", nil, "")
	}
	copied := *row
	return &copied, nil
}

type MockGateway struct {
	InitializeTransactionFunc func(ctx context.Context, req InitializeRequest) (*GatewayResponse, error)
	VerifyTransactionFunc     func(ctx context.Context, reference string) (*GatewayResponse, error)
}

func (m *MockGateway) InitializeTransaction(ctx context.Context, req InitializeRequest) (*GatewayResponse, error) {
	if m.InitializeTransactionFunc != nil {
		return m.InitializeTransactionFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *MockGateway) VerifyTransaction(ctx context.Context, reference string) (*GatewayResponse, error) {
	if m.VerifyTransactionFunc != nil {
		return m.VerifyTransactionFunc(ctx, reference)
	}
	return nil, errors.New("not implemented")
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]Status
}

func (c *mapCache) Get(_ context.Context, userID string) (*Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[userID]
	if !ok {
		return nil, false
	}
	return &s, true
}

func (c *mapCache) Set(_ context.Context, userID string, status Status, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = status
}

func (c *mapCache) Delete(_ context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

type recordingLocker struct {
	keys []string
}

func (l *recordingLocker) Lock(_ context.Context, key string) (func(), error) {
	l.keys = append(l.keys, key)
	return func() {}, nil
}

func newTestService(gateway *MockGateway) (*Service, *memoryRepository, *mapCache, *recordingLocker) {
	repo := newMemoryRepository()
	cache := &mapCache{entries: map[string]Status{}}
	locker := &recordingLocker{}
	svc := NewService(repo, gateway, cache, locker, Config{
		SecretKey:      testSecret,
		SiteURL:        "https://bastion.example.com/",
		PlanCode:       "PLN_kes600",
		StatusCacheTTL: time.Minute,
	})
	return svc, repo, cache, locker
}

func chargeEvent(t *testing.T, amount any, userID, reference string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event": EventChargeSuccess,
		"data": map[string]any{
			"reference": reference,
			"amount":    amount,
			"currency":  "KES",
			"channel":   "mobile_money",
			"status":    "success",
			"metadata":  map[string]any{"user_id": userID, "plan": PlanName},
		},
	})
	require.NoError(t, err)
	return body
}

func TestExpectedAmount(t *testing.T) {
	assert.Equal(t, int64(60000), ExpectedAmount())
	assert.Equal(t, int64(1050), ToSubunit(decimal.RequireFromString("10.499")))
}

func TestSignature(t *testing.T) {
	body := []byte(`{"event":"charge.success"}`)
	signature := SignPayload(testSecret, body)

	assert.Len(t, signature, 128)
	assert.True(t, VerifySignature(testSecret, body, signature))
	assert.False(t, VerifySignature(testSecret, body, "deadbeef"))
	assert.False(t, VerifySignature(testSecret, []byte(`{}`), signature))
	assert.False(t, VerifySignature("", body, signature))
}

func TestInitialize(t *testing.T) {
	t.Run("success records pending payment", func(t *testing.T) {
		var sent InitializeRequest
		gateway := &MockGateway{InitializeTransactionFunc: func(ctx context.Context, req InitializeRequest) (*GatewayResponse, error) {
			sent = req
			return &GatewayResponse{
				Status: true,
				Data:   TransactionData{Reference: "ref_1", AuthorizationURL: "https://checkout.paystack.com/x"},
				Raw:    map[string]any{"status": true, "data": map[string]any{"reference": "ref_1"}},
			}, nil
		}}
		svc, repo, _, _ := newTestService(gateway)

		raw, err := svc.Initialize(context.Background(), Customer{ID: "u1", Email: "u1@example.com"})
		require.NoError(t, err)
		assert.Equal(t, true, raw["status"])

		assert.Equal(t, "60000", sent.Amount)
		assert.Equal(t, "KES", sent.Currency)
		assert.Equal(t, []string{"card", "bank", "mobile_money", "bank_transfer"}, sent.Channels)
		assert.Equal(t, "PLN_kes600", sent.Plan)
		assert.Equal(t, "https://bastion.example.com/payments/callback", sent.CallbackURL)
		assert.Equal(t, "u1", sent.Metadata["user_id"])
		assert.Equal(t, PlanName, sent.Metadata["plan"])
		assert.Equal(t, "https://bastion.example.com/pricing", sent.Metadata["cancel_action"])

		require.Contains(t, repo.payments, "ref_1")
		assert.Equal(t, PaymentPending, repo.payments["ref_1"].Status)
		assert.Equal(t, "u1", repo.payments["ref_1"].UserID)
	})

	t.Run("requires email", func(t *testing.T) {
		svc, _, _, _ := newTestService(&MockGateway{})
		_, err := svc.Initialize(context.Background(), Customer{ID: "u1"})
		assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeUnauthorized))
		assert.Equal(t, "Please sign in to subscribe.", platformerrors.GetPlatformError(err).Message)
	})

	t.Run("requires secret", func(t *testing.T) {
		svc := NewService(newMemoryRepository(), &MockGateway{}, nil, nil, Config{})
		_, err := svc.Initialize(context.Background(), Customer{ID: "u1", Email: "a@b.c"})
		assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeInternal))
	})

	t.Run("gateway rejection", func(t *testing.T) {
		gateway := &MockGateway{InitializeTransactionFunc: func(ctx context.Context, req InitializeRequest) (*GatewayResponse, error) {
			return nil, &GatewayError{StatusCode: 400, Message: "Invalid plan code"}
		}}
		svc, _, _, _ := newTestService(gateway)
		_, err := svc.Initialize(context.Background(), Customer{ID: "u1", Email: "a@b.c"})
		assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
		assert.Equal(t, "Invalid plan code", platformerrors.GetPlatformError(err).Message)
	})
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name      string
		amount    any
		wantValid bool
	}{
		{name: "matching amount", amount: float64(60000), wantValid: true},
		{name: "wrong amount", amount: float64(100), wantValid: false},
		{name: "non numeric amount", amount: "60000", wantValid: true},
		{name: "missing amount", amount: nil, wantValid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := &MockGateway{VerifyTransactionFunc: func(ctx context.Context, reference string) (*GatewayResponse, error) {
				assert.Equal(t, "ref_1", reference)
				return &GatewayResponse{Status: true, Raw: map[string]any{"status": true, "data": map[string]any{"amount": tt.amount}}}, nil
			}}
			svc, _, _, _ := newTestService(gateway)

			out, err := svc.Verify(context.Background(), " ref_1 ")
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, out["amountValid"])
			assert.Equal(t, true, out["status"])
		})
	}

	t.Run("missing reference", func(t *testing.T) {
		svc, _, _, _ := newTestService(&MockGateway{})
		_, err := svc.Verify(context.Background(), "")
		assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
	})
}

func TestHandleWebhook(t *testing.T) {
	t.Run("invalid signature", func(t *testing.T) {
		svc, repo, _, _ := newTestService(&MockGateway{})
		body := chargeEvent(t, 60000, "u1", "ref_1")

		err := svc.HandleWebhook(context.Background(), body, "bad")
		assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeUnauthorized))
		assert.Empty(t, repo.billing)
	})

	t.Run("charge success provisions once", func(t *testing.T) {
		svc, repo, cache, locker := newTestService(&MockGateway{})
		cache.entries["u1"] = Status{Premium: false}
		body := chargeEvent(t, 60000, "u1", "ref_1")

		require.NoError(t, svc.HandleWebhook(context.Background(), body, SignPayload(testSecret, body)))
		require.NoError(t, svc.HandleWebhook(context.Background(), body, SignPayload(testSecret, body)))

		require.Contains(t, repo.billing, "u1")
		assert.Equal(t, StatusPremium, repo.billing["u1"].Status)
		assert.Equal(t, PaymentSuccess, repo.payments["ref_1"].Status)
		assert.Equal(t, "mobile_money", repo.payments["ref_1"].Channel)
		assert.NotContains(t, cache.entries, "u1")
		assert.Equal(t, []string{"billing:provision:ref_1", "billing:provision:ref_1"}, locker.keys)

		status, err := svc.Status(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, status.Premium)
		assert.Equal(t, "PLN_kes600", *status.Plan)
	})

	t.Run("wrong amount is acknowledged without provisioning", func(t *testing.T) {
		svc, repo, _, _ := newTestService(&MockGateway{})
		body := chargeEvent(t, 100, "u1", "ref_2")

		require.NoError(t, svc.HandleWebhook(context.Background(), body, SignPayload(testSecret, body)))
		assert.Empty(t, repo.billing)
	})

	t.Run("missing user is acknowledged without provisioning", func(t *testing.T) {
		svc, repo, _, _ := newTestService(&MockGateway{})
		body := chargeEvent(t, 60000, "", "ref_3")

		require.NoError(t, svc.HandleWebhook(context.Background(), body, SignPayload(testSecret, body)))
		assert.Empty(t, repo.billing)
	})

	t.Run("string encoded metadata", func(t *testing.T) {
		svc, repo, _, _ := newTestService(&MockGateway{})
		body := []byte(`{"event":"charge.success","data":{"reference":"ref_4","amount":60000,"metadata":"{\"user_id\":\"u9\"}"}}`)

		require.NoError(t, svc.HandleWebhook(context.Background(), body, SignPayload(testSecret, body)))
		assert.Contains(t, repo.billing, "u9")
	})

	t.Run("provisioning failure asks for retry", func(t *testing.T) {
		svc, repo, _, _ := newTestService(&MockGateway{})
		repo.failErr = errors.New("connection refused")
		body := chargeEvent(t, 60000, "u1", "ref_5")

		err := svc.HandleWebhook(context.Background(), body, SignPayload(testSecret, body))
		require.Error(t, err)
		assert.Equal(t, 500, platformerrors.ErrorTypeToHTTPStatus(platformerrors.GetPlatformError(err).Type))
	})

	t.Run("other events are acknowledged", func(t *testing.T) {
		svc, _, _, _ := newTestService(&MockGateway{})
		for _, event := range []string{"subscription.create", "invoice.payment_failed", "transfer.success"} {
			body := []byte(`{"event":"` + event + `","data":{}}`)
			assert.NoError(t, svc.HandleWebhook(context.Background(), body, SignPayload(testSecret, body)))
		}
	})
}

func TestStatus(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		svc, _, _, _ := newTestService(&MockGateway{})
		status, err := svc.Status(context.Background(), "")
		require.NoError(t, err)
		assert.False(t, status.Premium)
		assert.Nil(t, status.Plan)
	})

	t.Run("no billing row is cached as free", func(t *testing.T) {
		svc, _, cache, _ := newTestService(&MockGateway{})
		status, err := svc.Status(context.Background(), "u1")
		require.NoError(t, err)
		assert.False(t, status.Premium)
		assert.Contains(t, cache.entries, "u1")
	})

	t.Run("cache hit", func(t *testing.T) {
		svc, repo, cache, _ := newTestService(&MockGateway{})
		plan := "cached"
		cache.entries["u1"] = Status{Premium: true, Plan: &plan}
		repo.failErr = errors.New("should not be called")

		status, err := svc.Status(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, status.Premium)
	})

	t.Run("lookup error", func(t *testing.T) {
		svc, repo, _, _ := newTestService(&MockGateway{})
		repo.failErr = errors.New("timeout")
		_, err := svc.Status(context.Background(), "u1")
		assert.Error(t, err)
	})
}

func TestReconcile(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gateway := &MockGateway{VerifyTransactionFunc: func(ctx context.Context, reference string) (*GatewayResponse, error) {
		switch reference {
		case "ref_paid":
			return &GatewayResponse{Status: true, Data: TransactionData{Reference: reference, Status: "success", Amount: "60000", Currency: "KES"}}, nil
		case "ref_short":
			return &GatewayResponse{Status: true, Data: TransactionData{Reference: reference, Status: "success", Amount: "100"}}, nil
		case "ref_failed":
			return &GatewayResponse{Status: true, Data: TransactionData{Reference: reference, Status: "failed"}}, nil
		default:
			return &GatewayResponse{Status: true, Data: TransactionData{Reference: reference, Status: "ongoing"}}, nil
		}
	}}
	svc, repo, _, _ := newTestService(gateway)
	svc.now = func() time.Time { return now }

	seed := func(reference, userID string, age time.Duration) {
		require.NoError(t, repo.CreatePayment(context.Background(), &Payment{
			UserID: userID, Reference: reference, Amount: 60000, Currency: Currency, Status: PaymentPending, CreatedAt: now.Add(-age),
		}))
	}
	seed("ref_paid", "u1", 10*time.Minute)
	seed("ref_short", "u2", 10*time.Minute)
	seed("ref_failed", "u3", 10*time.Minute)
	seed("ref_fresh", "u4", time.Minute)
	seed("ref_stale", "u5", 25*time.Hour)

	result, err := svc.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, result.Checked)
	assert.Equal(t, 1, result.Provisioned)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, int64(1), result.Abandoned)

	assert.Equal(t, PaymentSuccess, repo.payments["ref_paid"].Status)
	assert.Contains(t, repo.billing, "u1")
	assert.Equal(t, PaymentFailed, repo.payments["ref_short"].Status)
	assert.Equal(t, PaymentFailed, repo.payments["ref_failed"].Status)
	assert.Equal(t, PaymentPending, repo.payments["ref_fresh"].Status)
	assert.Equal(t, PaymentAbandoned, repo.payments["ref_stale"].Status)
}
