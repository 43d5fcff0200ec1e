package worker

import (
	"context"
	"time"

	"github.com/cimillas/flashsale/internal/app"
)

type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type Settler interface {
	Reconcile(ctx context.Context) (app.ReconcileResult, error)
	Prune(ctx context.Context) (app.PruneResult, error)
}

func SweepJob(sweeper Sweeper, interval time.Duration) Job {
	return Job{
		Name:     app.OperationSweep,
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := sweeper.Sweep(ctx)
			return err
		},
	}
}

func ReconcileJob(settler Settler, interval time.Duration) Job {
	return Job{
		Name:     app.OperationReconcile,
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := settler.Reconcile(ctx)
			return err
		},
	}
}

// PruneJob runs hourly at most; retention is measured in days.
func PruneJob(settler Settler, interval time.Duration) Job {
	if interval < time.Hour {
		interval = time.Hour
	}
	return Job{
		Name:     app.OperationPrune,
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := settler.Prune(ctx)
			return err
		},
	}
}
