package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cimillas/flashsale/internal/clock"
	"github.com/cimillas/flashsale/internal/domain"
	"github.com/cimillas/flashsale/internal/ledger"
)

type HoldRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetProductForUpdate(ctx context.Context, id int64) (domain.Product, error)
	SumActiveHolds(ctx context.Context, productID int64, now time.Time) (int, error)
	SumPaidOrders(ctx context.Context, productID int64) (int, error)
	// CreateHold returns domain.ErrHoldTokenCollision when the token is taken.
	CreateHold(ctx context.Context, hold domain.Hold) (domain.Hold, error)
}

type HoldService struct {
	repo        HoldRepository
	stock       StockInvalidator
	clock       clock.Clock
	holdTTL     time.Duration
	maxQuantity int
	newToken    TokenGenerator
	observer    Observer
}

const (
	defaultHoldTTL         = 2 * time.Minute
	defaultMaxHoldQuantity = 10
	maxTokenAttempts       = 5
)

func NewHoldService(repo HoldRepository, stock StockInvalidator, clk clock.Clock, opts ...HoldServiceOption) *HoldService {
	svc := &HoldService{
		repo:        repo,
		stock:       stock,
		clock:       clk,
		holdTTL:     defaultHoldTTL,
		maxQuantity: defaultMaxHoldQuantity,
		newToken:    NewHoldToken,
		observer:    nopObserver{},
	}
	if svc.stock == nil {
		svc.stock = nopInvalidator{}
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type HoldServiceOption func(*HoldService)

// WithHoldTTL overrides the default TTL for new holds.
func WithHoldTTL(d time.Duration) HoldServiceOption {
	return func(s *HoldService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

// WithMaxHoldQuantity caps the units a single hold may reserve.
func WithMaxHoldQuantity(n int) HoldServiceOption {
	return func(s *HoldService) {
		if n > 0 {
			s.maxQuantity = n
		}
	}
}

func WithTokenGenerator(gen TokenGenerator) HoldServiceOption {
	return func(s *HoldService) {
		if gen != nil {
			s.newToken = gen
		}
	}
}

func WithHoldObserver(o Observer) HoldServiceOption {
	return func(s *HoldService) {
		if o != nil {
			s.observer = o
		}
	}
}

type ReserveInput struct {
	ProductID int64
	Quantity  int
}

// Reserve places a hold on quantity units of a product. Availability is
// recomputed under the product row lock, so concurrent reservations for the
// same product are serialized and can never oversell.
func (s *HoldService) Reserve(ctx context.Context, in ReserveInput) (hold domain.Hold, err error) {
	start := time.Now()
	defer func() {
		s.observer.Observe(ctx, Operation{
			Name:      OperationReserve,
			ProductID: in.ProductID,
			HoldID:    hold.ID,
			Quantity:  in.Quantity,
			Outcome:   outcomeOf(err, "ok"),
			Duration:  time.Since(start),
			Err:       err,
		})
	}()

	if in.ProductID <= 0 {
		return domain.Hold{}, domain.ErrInvalidID
	}
	if in.Quantity <= 0 || in.Quantity > s.maxQuantity {
		return domain.Hold{}, domain.ErrInvalidQuantity
	}

	var result domain.Hold
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		product, err := s.repo.GetProductForUpdate(txCtx, in.ProductID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		facts, err := ledger.Gather(txCtx, s.repo, product, now)
		if err != nil {
			return err
		}
		available := ledger.Available(facts)
		if in.Quantity > available {
			return &domain.InsufficientStockError{Available: available}
		}

		for attempt := 0; attempt < maxTokenAttempts; attempt++ {
			created, err := s.repo.CreateHold(txCtx, domain.Hold{
				ProductID: product.ID,
				Quantity:  in.Quantity,
				Token:     s.newToken(),
				ExpiresAt: now.Add(s.holdTTL),
				CreatedAt: now,
			})
			if errors.Is(err, domain.ErrHoldTokenCollision) {
				continue
			}
			if err != nil {
				return err
			}
			result = created
			return nil
		}
		return fmt.Errorf("create hold after %d attempts: %w", maxTokenAttempts, domain.ErrHoldTokenCollision)
	})
	if err != nil {
		return domain.Hold{}, err
	}

	s.stock.Invalidate(ctx, result.ProductID)
	return result, nil
}
