package app

import (
	"context"
	"strings"
	"time"

	"github.com/cimillas/flashsale/internal/clock"
	"github.com/cimillas/flashsale/internal/domain"
	"github.com/shopspring/decimal"
)

type OrderRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetHoldByTokenForUpdate(ctx context.Context, token string) (domain.Hold, error)
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
	// CreateOrder returns domain.ErrHoldInvalid when the hold already has an order.
	CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error)
	MarkHoldUsed(ctx context.Context, holdID int64) error
}

type OrderService struct {
	repo     OrderRepository
	stock    StockInvalidator
	clock    clock.Clock
	observer Observer
}

func NewOrderService(repo OrderRepository, stock StockInvalidator, clk clock.Clock, opts ...OrderServiceOption) *OrderService {
	svc := &OrderService{
		repo:     repo,
		stock:    stock,
		clock:    clk,
		observer: nopObserver{},
	}
	if svc.stock == nil {
		svc.stock = nopInvalidator{}
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type OrderServiceOption func(*OrderService)

func WithOrderObserver(o Observer) OrderServiceOption {
	return func(s *OrderService) {
		if o != nil {
			s.observer = o
		}
	}
}

// CreateOrder consumes the hold identified by token into a pending_payment
// order priced at the product's current unit price.
//
// A hold found expired is released (marked used) and the release is
// committed before domain.ErrHoldExpired is returned; a second attempt with
// the same token therefore reports domain.ErrHoldInvalid.
func (s *OrderService) CreateOrder(ctx context.Context, token string) (order domain.Order, err error) {
	start := time.Now()
	var hold domain.Hold
	defer func() {
		s.observer.Observe(ctx, Operation{
			Name:      OperationCreateOrder,
			ProductID: hold.ProductID,
			HoldID:    hold.ID,
			OrderID:   order.ID,
			Quantity:  hold.Quantity,
			Outcome:   outcomeOf(err, "ok"),
			Duration:  time.Since(start),
			Err:       err,
		})
	}()

	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Order{}, domain.ErrInvalidHoldToken
	}

	var (
		result  domain.Order
		expired bool
	)
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		locked, err := s.repo.GetHoldByTokenForUpdate(txCtx, token)
		if err != nil {
			return err
		}
		hold = locked
		if hold.Used {
			return domain.ErrHoldInvalid
		}

		now := s.clock.Now()
		if hold.Expired(now) {
			expired = true
			return s.repo.MarkHoldUsed(txCtx, hold.ID)
		}

		product, err := s.repo.GetProduct(txCtx, hold.ProductID)
		if err != nil {
			return err
		}

		created, err := s.repo.CreateOrder(txCtx, domain.Order{
			HoldID:    hold.ID,
			ProductID: hold.ProductID,
			Quantity:  hold.Quantity,
			Amount:    product.UnitPrice.Mul(decimal.NewFromInt(int64(hold.Quantity))),
			Status:    domain.OrderStatusPendingPayment,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		if err := s.repo.MarkHoldUsed(txCtx, hold.ID); err != nil {
			return err
		}
		result = created
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.stock.Invalidate(ctx, hold.ProductID)
	if expired {
		return domain.Order{}, domain.ErrHoldExpired
	}
	return result, nil
}
