package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cimillas/flashsale/internal/cache"
	"github.com/cimillas/flashsale/internal/clock"
	"github.com/cimillas/flashsale/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		facts Facts
		want  int
	}{
		{name: "untouched", facts: Facts{TotalStock: 10}, want: 10},
		{name: "holds and orders", facts: Facts{TotalStock: 10, ActiveHeld: 3, Paid: 4}, want: 3},
		{name: "exhausted", facts: Facts{TotalStock: 10, ActiveHeld: 5, Paid: 5}, want: 0},
		{name: "clamped at zero", facts: Facts{TotalStock: 2, ActiveHeld: 5, Paid: 1}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Available(tt.facts))
		})
	}
}

type stubSource struct {
	product domain.Product
	active  int
	paid    int
	reads   int
	err     error
}

func (s *stubSource) GetProduct(_ context.Context, id int64) (domain.Product, error) {
	s.reads++
	if s.err != nil {
		return domain.Product{}, s.err
	}
	if id != s.product.ID {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return s.product, nil
}

func (s *stubSource) SumActiveHolds(context.Context, int64, time.Time) (int, error) {
	return s.active, nil
}

func (s *stubSource) SumPaidOrders(context.Context, int64) (int, error) {
	return s.paid, nil
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (int, bool, error) {
	return 0, false, errors.New("cache down")
}
func (brokenCache) Set(context.Context, string, int, time.Duration) error {
	return errors.New("cache down")
}
func (brokenCache) Delete(context.Context, string) error { return errors.New("cache down") }

func TestLedger(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("serves cached value until invalidated", func(t *testing.T) {
		src := &stubSource{product: domain.Product{ID: 1, TotalStock: 10}, active: 2}
		clk := clock.NewFixed(now)
		l := New(src, cache.NewMemory(clk), clk)

		got, err := l.Available(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 8, got)

		src.active = 5
		got, err = l.Available(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 8, got, "expected stale cached value")
		assert.Equal(t, 1, src.reads)

		l.Invalidate(ctx, 1)
		got, err = l.Available(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 5, got)
		assert.Equal(t, 2, src.reads)
	})

	t.Run("cache ttl bounds staleness", func(t *testing.T) {
		src := &stubSource{product: domain.Product{ID: 1, TotalStock: 10}}
		clk := clock.NewManual(now)
		l := New(src, cache.NewMemory(clk), clk, WithCacheTTL(time.Second))

		_, err := l.Available(ctx, 1)
		require.NoError(t, err)
		src.paid = 4
		clk.Advance(time.Second)

		got, err := l.Available(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 6, got)
	})

	t.Run("cache failure falls back to source", func(t *testing.T) {
		src := &stubSource{product: domain.Product{ID: 1, TotalStock: 3}}
		l := New(src, brokenCache{}, clock.NewFixed(now))

		got, err := l.Available(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 3, got)
		l.Invalidate(ctx, 1)
	})

	t.Run("unknown product", func(t *testing.T) {
		src := &stubSource{product: domain.Product{ID: 1, TotalStock: 3}}
		l := New(src, nil, clock.NewFixed(now))

		_, err := l.Available(ctx, 2)
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
		_, err = l.Available(ctx, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidID)
	})
}

func TestKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "flashsale:stock:42", Key(42))
}
