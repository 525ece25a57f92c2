package billingrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bastion-server/internal/domain/billing"
	"bastion-server/internal/infrastructure/database/dbschema"
	"bastion-server/internal/infrastructure/database/transaction"
	"bastion-server/internal/utils/idgen"
	"bastion-server/internal/utils/platformerrors"
)

type BillingGormRepository struct {
	db  *transaction.Database
	now func() time.Time
}

var _ billing.Repository = (*BillingGormRepository)(nil)

func NewBillingGormRepository(db *transaction.Database) billing.Repository {
	return &BillingGormRepository{db: db, now: time.Now}
}

// CreatePayment implements billing.Repository.
func (repo *BillingGormRepository) CreatePayment(ctx context.Context, payment *billing.Payment) error {
	now := repo.now().UTC()
	if payment.ID == "" {
		payment.ID = idgen.NewObjectID("pay")
	}
	payment.CreatedAt, payment.UpdatedAt = now, now

	row := dbschema.NewSchemaPayment(payment)
	err := repo.db.GetTx(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "reference"}}, DoNothing: true}).
		Create(row).Error
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to create payment")
	}
	return nil
}

// UpdatePaymentStatus implements billing.Repository.
func (repo *BillingGormRepository) UpdatePaymentStatus(ctx context.Context, reference, status string) error {
	err := repo.db.GetTx(ctx).Model(&dbschema.Payment{}).
		Where("reference = ?", reference).
		Updates(map[string]any{"status": status, "updated_at": repo.now().UTC()}).Error
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to update payment status")
	}
	return nil
}

// ListPendingPayments implements billing.Repository.
func (repo *BillingGormRepository) ListPendingPayments(ctx context.Context, createdBefore time.Time, limit int) ([]*billing.Payment, error) {
	var rows []dbschema.Payment
	err := repo.db.GetTx(ctx).
		Where("status = ? AND created_at < ?", billing.PaymentPending, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to list pending payments")
	}
	payments := make([]*billing.Payment, 0, len(rows))
	for i := range rows {
		payments = append(payments, rows[i].EtoD())
	}
	return payments, nil
}

// AbandonPendingPayments implements billing.Repository.
func (repo *BillingGormRepository) AbandonPendingPayments(ctx context.Context, createdBefore time.Time) (int64, error) {
	result := repo.db.GetTx(ctx).Model(&dbschema.Payment{}).
		Where("status = ? AND created_at < ?", billing.PaymentPending, createdBefore).
		Updates(map[string]any{"status": billing.PaymentAbandoned, "updated_at": repo.now().UTC()})
	if result.Error != nil {
		return 0, platformerrors.AsError(ctx, platformerrors.LayerRepository, result.Error, "failed to abandon pending payments")
	}
	return result.RowsAffected, nil
}

// Provision implements billing.Repository.
func (repo *BillingGormRepository) Provision(ctx context.Context, grant billing.Grant) (bool, error) {
	provisioned := false
	err := repo.db.Transaction(ctx, func(ctx context.Context) error {
		tx := repo.db.GetTx(ctx)
		now := repo.now().UTC()

		var existing dbschema.Payment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("reference = ?", grant.Reference).First(&existing).Error
		switch {
		case err == nil:
			if existing.Status == billing.PaymentSuccess {
				return nil
			}
			updates := map[string]any{"status": billing.PaymentSuccess, "updated_at": now, "amount": grant.Amount}
			if grant.Channel != "" {
				updates["channel"] = grant.Channel
			}
			if existing.UserID == "" {
				updates["user_id"] = grant.UserID
			}
			if err := tx.Model(&dbschema.Payment{}).Where("reference = ?", grant.Reference).Updates(updates).Error; err != nil {
				return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to mark payment successful")
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			row := dbschema.NewSchemaPayment(&billing.Payment{
				ID:        idgen.NewObjectID("pay"),
				UserID:    grant.UserID,
				Reference: grant.Reference,
				Amount:    grant.Amount,
				Currency:  grant.Currency,
				Status:    billing.PaymentSuccess,
				Channel:   grant.Channel,
				Metadata:  grant.Metadata,
				CreatedAt: now,
				UpdatedAt: now,
			})
			if err := tx.Create(row).Error; err != nil {
				return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to record payment")
			}
		default:
			return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to load payment")
		}

		var planCode *string
		if grant.PlanCode != "" {
			planCode = &grant.PlanCode
		}
		entitlement := &dbschema.UserBilling{
			UserID:    grant.UserID,
			Status:    billing.StatusPremium,
			Provider:  billing.ProviderPaystack,
			PlanCode:  planCode,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "provider", "plan_code", "updated_at"}),
		}).Create(entitlement).Error; err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to upgrade user")
		}
		provisioned = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return provisioned, nil
}

// FindUserBilling implements billing.Repository.
func (repo *BillingGormRepository) FindUserBilling(ctx context.Context, userID string) (*billing.UserBilling, error) {
	var row dbschema.UserBilling
	err := repo.db.GetTx(ctx).Where("user_id = ?", userID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "billing record not found", err, "516d4328-a0b5-4817-8615-fd56776c3fd6")
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to find billing record")
	}
	return row.EtoD(), nil
}
