package cron

import (
	"context"
	"fmt"

	"marketplace/internal/logger"
	"marketplace/internal/models"
)

const ReconcileJobName = "settlement_reconcile"

type reconciler interface {
	ReconcileAll(ctx context.Context) (models.ReconcileSummary, error)
}

type reconcileJob struct {
	logg       *logger.Logger
	reconciler reconciler
}

// NewReconcileJob clears matured sale entries for every account.
func NewReconcileJob(logg *logger.Logger, r reconciler) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if r == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &reconcileJob{logg: logg, reconciler: r}, nil
}

func (j *reconcileJob) Name() string { return ReconcileJobName }

func (j *reconcileJob) Run(ctx context.Context) error {
	summary, err := j.reconciler.ReconcileAll(ctx)
	ctx = j.logg.WithFields(ctx, map[string]any{
		"accounts":        summary.Accounts,
		"entries_cleared": summary.EntriesCleared,
		"amount_cleared":  summary.AmountCleared,
		"failed":          summary.Failed,
	})
	if err != nil {
		return fmt.Errorf("reconcile accounts: %w", err)
	}
	j.logg.Info(ctx, "settlement reconcile finished")
	return nil
}
