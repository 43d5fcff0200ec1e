package app

import (
	"context"
	"fmt"
	"time"

	"github.com/cimillas/flashsale/internal/clock"
	"github.com/cimillas/flashsale/internal/domain"
	"go.uber.org/zap"
)

type ReaperRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// ListExpiredHolds returns unused holds with expires_at <= now.
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error)
	GetHoldForUpdate(ctx context.Context, id int64) (domain.Hold, error)
	MarkHoldUsed(ctx context.Context, holdID int64) error
}

// Reaper releases holds whose window closed without an order.
type Reaper struct {
	repo      ReaperRepository
	stock     StockInvalidator
	clock     clock.Clock
	batchSize int
	observer  Observer
	logger    *zap.Logger
}

func NewReaper(repo ReaperRepository, stock StockInvalidator, clk clock.Clock, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		repo:      repo,
		stock:     stock,
		clock:     clk,
		batchSize: defaultBatchSize,
		observer:  nopObserver{},
		logger:    zap.NewNop(),
	}
	if r.stock == nil {
		r.stock = nopInvalidator{}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type ReaperOption func(*Reaper)

func WithReaperBatchSize(n int) ReaperOption {
	return func(r *Reaper) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithReaperObserver(o Observer) ReaperOption {
	return func(r *Reaper) {
		if o != nil {
			r.observer = o
		}
	}
}

func WithReaperLogger(logger *zap.Logger) ReaperOption {
	return func(r *Reaper) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Sweep marks expired unused holds as used, one transaction per hold, and
// returns how many it released. A hold that fails to release is logged and
// left for the next sweep.
func (r *Reaper) Sweep(ctx context.Context) (released int, err error) {
	start := time.Now()
	defer func() {
		r.observer.Observe(ctx, Operation{
			Name:     OperationSweep,
			Outcome:  outcomeOf(err, "ok"),
			Count:    released,
			Duration: time.Since(start),
			Err:      err,
		})
	}()

	holds, err := r.repo.ListExpiredHolds(ctx, r.clock.Now(), r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired holds: %w", err)
	}

	for _, h := range holds {
		ok, err := r.release(ctx, h.ID)
		if err != nil {
			r.logger.Warn("release expired hold failed",
				zap.Int64("hold_id", h.ID),
				zap.Int64("product_id", h.ProductID),
				zap.Bool("transient", domain.IsTransient(err)),
				zap.Error(err))
			continue
		}
		if ok {
			released++
			r.stock.Invalidate(ctx, h.ProductID)
		}
	}
	return released, nil
}

func (r *Reaper) release(ctx context.Context, holdID int64) (bool, error) {
	var released bool
	err := r.repo.WithTx(ctx, func(txCtx context.Context) error {
		hold, err := r.repo.GetHoldForUpdate(txCtx, holdID)
		if err != nil {
			return err
		}
		// An order may have consumed it since the listing.
		if hold.Used || !hold.Expired(r.clock.Now()) {
			return nil
		}
		if err := r.repo.MarkHoldUsed(txCtx, hold.ID); err != nil {
			return err
		}
		released = true
		return nil
	})
	return released, err
}
