package billing

import (
	"context"
	"time"

	"bastion-server/internal/infrastructure/metrics"
)

const (
	// ReconcileMinAge gives the webhook time to arrive before a payment is verified directly.
	ReconcileMinAge  = 5 * time.Minute
	AbandonAfter     = 24 * time.Hour
	reconcileBatch   = 100
	gatewaySuccess   = "success"
	gatewayFailed    = "failed"
	gatewayAbandoned = "abandoned"
)

// ReconcileResult summarises one reconciliation pass.
type ReconcileResult struct {
	Checked     int
	Provisioned int
	Failed      int
	Abandoned   int64
	Errors      int
}

// Reconcile re-verifies pending payments the webhook did not settle and abandons stale ones.
func (s *Service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult
	if err := s.configured(ctx); err != nil {
		return result, err
	}

	now := s.now()
	pending, err := s.repo.ListPendingPayments(ctx, now.Add(-ReconcileMinAge), reconcileBatch)
	if err != nil {
		return result, err
	}

	for _, payment := range pending {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Checked++
		if err := s.reconcilePayment(ctx, payment, &result); err != nil {
			result.Errors++
			s.log.Warn().Err(err).Str("reference", payment.Reference).Msg("failed to reconcile payment")
		}
	}

	abandoned, err := s.repo.AbandonPendingPayments(ctx, now.Add(-AbandonAfter))
	if err != nil {
		return result, err
	}
	result.Abandoned = abandoned
	if abandoned > 0 {
		metrics.RecordPayment("reconcile", PaymentAbandoned)
	}

	s.log.Info().
		Int("checked", result.Checked).
		Int("provisioned", result.Provisioned).
		Int("failed", result.Failed).
		Int64("abandoned", result.Abandoned).
		Int("errors", result.Errors).
		Msg("payment reconciliation finished")
	return result, nil
}

func (s *Service) reconcilePayment(ctx context.Context, payment *Payment, result *ReconcileResult) error {
	resp, err := s.gateway.VerifyTransaction(ctx, payment.Reference)
	if err != nil {
		return err
	}

	switch resp.Data.Status {
	case gatewaySuccess:
		amount, ok := resp.Data.AmountSubunit()
		if !ok || amount != ExpectedAmount() {
			s.log.Warn().Str("reference", payment.Reference).Int64("amount", amount).Msg("verified amount does not match the plan price")
			return s.repo.UpdatePaymentStatus(ctx, payment.Reference, PaymentFailed)
		}
		userID := payment.UserID
		if userID == "" {
			userID = resp.Data.UserID()
		}
		if userID == "" {
			s.log.Warn().Str("reference", payment.Reference).Msg("verified payment has no user")
			return nil
		}
		provisioned, err := s.provision(ctx, Grant{
			UserID:    userID,
			Reference: payment.Reference,
			Amount:    amount,
			Currency:  nonEmpty(resp.Data.Currency, Currency),
			Channel:   resp.Data.Channel,
			PlanCode:  s.cfg.PlanCode,
			Metadata:  map[string]any{"provider": ProviderPaystack, "source": "reconcile"},
		}, "reconcile")
		if err != nil {
			return err
		}
		if provisioned {
			result.Provisioned++
		}
	case gatewayFailed, gatewayAbandoned:
		result.Failed++
		metrics.RecordPayment("reconcile", resp.Data.Status)
		return s.repo.UpdatePaymentStatus(ctx, payment.Reference, resp.Data.Status)
	}
	return nil
}
