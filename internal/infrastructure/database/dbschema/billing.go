package dbschema

import (
	"time"

	"gorm.io/datatypes"

	"bastion-server/internal/domain/billing"
)

// Payment represents the database schema for gateway transactions
type Payment struct {
	ID        string            `gorm:"type:varchar(64);primaryKey"`
	UserID    string            `gorm:"type:varchar(128);index;not null"`
	Reference string            `gorm:"type:varchar(128);uniqueIndex:idx_payments_reference;not null"`
	Amount    int64             `gorm:"not null"`
	Currency  string            `gorm:"type:varchar(8);not null"`
	Status    string            `gorm:"type:varchar(16);index:idx_payments_status_created;not null"`
	Channel   *string           `gorm:"type:varchar(32)"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"index:idx_payments_status_created;not null"`
	UpdatedAt time.Time         `gorm:"not null"`
}

// UserBilling represents the database schema for a user's entitlement
type UserBilling struct {
	UserID    string    `gorm:"type:varchar(128);primaryKey"`
	Status    string    `gorm:"type:varchar(16);not null"`
	Provider  string    `gorm:"type:varchar(32);not null"`
	PlanCode  *string   `gorm:"type:varchar(64)"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// NewSchemaPayment creates a database schema from domain payment
func NewSchemaPayment(p *billing.Payment) *Payment {
	var channel *string
	if p.Channel != "" {
		channel = &p.Channel
	}
	var metadata datatypes.JSONMap
	if len(p.Metadata) > 0 {
		metadata = datatypes.JSONMap(p.Metadata)
	}
	return &Payment{
		ID:        p.ID,
		UserID:    p.UserID,
		Reference: p.Reference,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    p.Status,
		Channel:   channel,
		Metadata:  metadata,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// EtoD converts database schema to domain payment
func (p *Payment) EtoD() *billing.Payment {
	payment := &billing.Payment{
		ID:        p.ID,
		UserID:    p.UserID,
		Reference: p.Reference,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if p.Channel != nil {
		payment.Channel = *p.Channel
	}
	if len(p.Metadata) > 0 {
		payment.Metadata = map[string]any(p.Metadata)
	}
	return payment
}

// EtoD converts database schema to domain billing row
func (u *UserBilling) EtoD() *billing.UserBilling {
	return &billing.UserBilling{
		UserID:    u.UserID,
		Status:    u.Status,
		Provider:  u.Provider,
		PlanCode:  u.PlanCode,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
