// Package worker runs the periodic maintenance jobs: expiring holds,
// reconciling queued payment notifications and pruning settlement history.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Job is one periodic task. Run errors are logged and the job keeps its
// schedule.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	jobs   []Job
	logger *zap.Logger
}

func NewScheduler(logger *zap.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{jobs: jobs, logger: logger}
}

// Run blocks until ctx is cancelled. Each job runs once immediately and then
// on its interval; a job never overlaps with itself.
func (s *Scheduler) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		if job.Run == nil || job.Interval <= 0 {
			s.logger.Warn("skipping job without schedule", zap.String("job", job.Name))
			continue
		}
		job := job
		group.Go(func() error {
			s.loop(ctx, job)
			return nil
		})
	}
	return group.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.runOnce(ctx, job)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	if err := job.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		s.logger.Error("job failed", zap.String("job", job.Name), zap.Error(err))
	}
}
