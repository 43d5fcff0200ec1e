package app

import (
	"context"
	"strings"
	"time"

	"github.com/cimillas/flashsale/internal/clock"
	"github.com/cimillas/flashsale/internal/domain"
	"github.com/shopspring/decimal"
)

type CatalogRepository interface {
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error)
}

// AvailabilityReader reports advisory availability for display.
type AvailabilityReader interface {
	Available(ctx context.Context, productID int64) (int, error)
}

type CatalogService struct {
	repo     CatalogRepository
	stock    AvailabilityReader
	clock    clock.Clock
	observer Observer
}

func NewCatalogService(repo CatalogRepository, stock AvailabilityReader, clk clock.Clock, opts ...CatalogServiceOption) *CatalogService {
	svc := &CatalogService{
		repo:     repo,
		stock:    stock,
		clock:    clk,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type CatalogServiceOption func(*CatalogService)

func WithCatalogObserver(o Observer) CatalogServiceOption {
	return func(s *CatalogService) {
		if o != nil {
			s.observer = o
		}
	}
}

type ProductView struct {
	Product        domain.Product
	AvailableStock int
}

// GetProduct returns a product with its cached availability. The figure may
// lag behind reservations by up to the cache TTL.
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (ProductView, error) {
	if id <= 0 {
		return ProductView{}, domain.ErrInvalidID
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return ProductView{}, err
	}
	available, err := s.stock.Available(ctx, id)
	if err != nil {
		return ProductView{}, err
	}
	return ProductView{Product: product, AvailableStock: available}, nil
}

type SeedProductInput struct {
	Name       string
	UnitPrice  decimal.Decimal
	TotalStock int
}

func (s *CatalogService) SeedProduct(ctx context.Context, in SeedProductInput) (product domain.Product, err error) {
	start := time.Now()
	defer func() {
		s.observer.Observe(ctx, Operation{
			Name:      OperationSeed,
			ProductID: product.ID,
			Quantity:  in.TotalStock,
			Outcome:   outcomeOf(err, "ok"),
			Duration:  time.Since(start),
			Err:       err,
		})
	}()

	name := strings.TrimSpace(in.Name)
	if name == "" || !in.UnitPrice.IsPositive() || in.TotalStock < 0 {
		return domain.Product{}, domain.ErrInvalidProduct
	}

	return s.repo.CreateProduct(ctx, domain.Product{
		Name:       name,
		UnitPrice:  in.UnitPrice.Round(2),
		TotalStock: in.TotalStock,
		CreatedAt:  s.clock.Now(),
	})
}
