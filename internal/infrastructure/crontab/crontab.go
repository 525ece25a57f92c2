package crontab

import (
	"context"
	"fmt"
	"time"

	"github.com/mileusna/crontab"

	"bastion-server/internal/domain/billing"
	"bastion-server/internal/infrastructure/logger"
	"bastion-server/internal/utils/platformerrors"
)

const (
	DefaultReconcileInterval = 10              // in minutes
	CronJobTimeout           = 5 * time.Minute // Timeout for each cron job execution
)

// Reconciler is the billing pass the scheduler runs.
type Reconciler interface {
	Reconcile(ctx context.Context) (billing.ReconcileResult, error)
}

type Crontab struct {
	ctab       *crontab.Crontab
	reconciler Reconciler
	interval   int
	enabled    bool
}

// NewCrontab schedules payment reconciliation every intervalMinutes. enabled is false when the
// payment gateway is not configured.
func NewCrontab(reconciler Reconciler, intervalMinutes int, enabled bool) *Crontab {
	if intervalMinutes <= 0 {
		intervalMinutes = DefaultReconcileInterval
	}
	return &Crontab{
		ctab:       crontab.New(),
		reconciler: reconciler,
		interval:   intervalMinutes,
		enabled:    enabled,
	}
}

func (c *Crontab) Expression() string {
	return fmt.Sprintf("*/%d * * * *", c.interval)
}

// Run blocks until ctx is done.
func (c *Crontab) Run(ctx context.Context) error {
	log := logger.GetLogger()
	if !c.enabled {
		log.Warn().Msg("Payment reconciliation disabled: PAYSTACK_SECRET_KEY is not set")
		<-ctx.Done()
		return nil
	}

	if err := c.ctab.AddJob(c.Expression(), func() {
		jobCtx, cancel := context.WithTimeout(ctx, CronJobTimeout)
		defer cancel()
		c.reconcile(jobCtx)
	}); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add payment reconcile job")
	}
	log.Info().Msgf("Payment reconciliation scheduled: every %d minute(s)", c.interval)

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

func (c *Crontab) reconcile(ctx context.Context) {
	log := logger.GetLogger()
	if _, err := c.reconciler.Reconcile(ctx); err != nil {
		log.Error().Err(err).Msg("Payment reconciliation failed")
	}
}
