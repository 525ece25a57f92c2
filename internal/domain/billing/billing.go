package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Currency    = "KES"
	PlanName    = "premium_monthly_kes_600"
	ProductName = "Bastion Premium"

	StatusPremium = "premium"
	StatusFree    = "free"

	ProviderPaystack = "paystack"

	PaymentPending   = "pending"
	PaymentSuccess   = "success"
	PaymentFailed    = "failed"
	PaymentAbandoned = "abandoned"

	EventChargeSuccess = "charge.success"
)

// PlanPriceKES is the monthly premium price in whole shillings.
var PlanPriceKES = decimal.NewFromInt(600)

// Channels offered on the checkout page.
var Channels = []string{"card", "bank", "mobile_money", "bank_transfer"}

// ToSubunit converts a major currency amount to the gateway's two-decimal subunit.
func ToSubunit(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// ExpectedAmount is the plan price in subunits.
func ExpectedAmount() int64 {
	return ToSubunit(PlanPriceKES)
}

// Payment is one gateway transaction, keyed by its reference.
type Payment struct {
	ID        string
	UserID    string
	Reference string
	Amount    int64
	Currency  string
	Status    string
	Channel   string
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserBilling is the entitlement row of one user.
type UserBilling struct {
	UserID    string
	Status    string
	Provider  string
	PlanCode  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Grant is a confirmed charge to turn into an entitlement.
type Grant struct {
	UserID    string
	Reference string
	Amount    int64
	Currency  string
	Channel   string
	PlanCode  string
	Metadata  map[string]any
}

// Status is what clients see about a user's plan.
type Status struct {
	Premium bool    `json:"premium"`
	Plan    *string `json:"plan"`
}

// Repository persists payments and entitlements.
type Repository interface {
	// CreatePayment inserts a payment; an existing reference is left untouched.
	CreatePayment(ctx context.Context, payment *Payment) error
	UpdatePaymentStatus(ctx context.Context, reference, status string) error
	ListPendingPayments(ctx context.Context, createdBefore time.Time, limit int) ([]*Payment, error)
	AbandonPendingPayments(ctx context.Context, createdBefore time.Time) (int64, error)
	// Provision marks the payment successful and upgrades the user in one transaction. It
	// returns false when the reference had already been provisioned.
	Provision(ctx context.Context, grant Grant) (bool, error)
	// FindUserBilling returns a NotFound platform error when the user has no billing row.
	FindUserBilling(ctx context.Context, userID string) (*UserBilling, error)
}

// StatusCache keeps recent Status lookups.
type StatusCache interface {
	Get(ctx context.Context, userID string) (*Status, bool)
	Set(ctx context.Context, userID string, status Status, ttl time.Duration)
	Delete(ctx context.Context, userID string)
}

// Locker serialises work on one key across instances.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type noopLocker struct{}

func (noopLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (*Status, bool) { return nil, false }

func (noopCache) Set(context.Context, string, Status, time.Duration) {}

func (noopCache) Delete(context.Context, string) {}
