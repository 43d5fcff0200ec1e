package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cimillas/flashsale/internal/app"
)

func TestScheduler_RunsJobsUntilCancelled(t *testing.T) {
	t.Parallel()

	var fast, failing atomic.Int32
	core, logs := observer.New(zapcore.ErrorLevel)
	s := NewScheduler(zap.New(core),
		Job{Name: "fast", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			fast.Add(1)
			return nil
		}},
		Job{Name: "failing", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			failing.Add(1)
			return errors.New("boom")
		}},
		Job{Name: "unscheduled"},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return fast.Load() >= 3 && failing.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, logs.FilterField(zap.String("job", "failing")).Len(), 3)
}

type stubSettler struct {
	reconciled atomic.Int32
	pruned     atomic.Int32
}

func (s *stubSettler) Reconcile(context.Context) (app.ReconcileResult, error) {
	s.reconciled.Add(1)
	return app.ReconcileResult{}, nil
}

func (s *stubSettler) Prune(context.Context) (app.PruneResult, error) {
	s.pruned.Add(1)
	return app.PruneResult{}, nil
}

type stubSweeper struct{ calls atomic.Int32 }

func (s *stubSweeper) Sweep(context.Context) (int, error) {
	s.calls.Add(1)
	return 0, nil
}

func TestJobs_DelegateToServices(t *testing.T) {
	t.Parallel()

	sweeper := &stubSweeper{}
	settler := &stubSettler{}
	ctx := context.Background()

	sweep := SweepJob(sweeper, time.Second)
	require.NoError(t, sweep.Run(ctx))
	assert.Equal(t, app.OperationSweep, sweep.Name)
	assert.EqualValues(t, 1, sweeper.calls.Load())

	reconcile := ReconcileJob(settler, time.Second)
	require.NoError(t, reconcile.Run(ctx))
	assert.EqualValues(t, 1, settler.reconciled.Load())

	prune := PruneJob(settler, time.Minute)
	require.NoError(t, prune.Run(ctx))
	assert.Equal(t, time.Hour, prune.Interval)
	assert.EqualValues(t, 1, settler.pruned.Load())
}
