package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimillas/flashsale/internal/app"
)

func TestCollector_CountsByOutcome(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	ctx := context.Background()
	c.Observe(ctx, app.Operation{Name: app.OperationReserve, Outcome: "ok", Duration: time.Millisecond})
	c.Observe(ctx, app.Operation{Name: app.OperationReserve, Outcome: "ok", Duration: time.Millisecond})
	c.Observe(ctx, app.Operation{Name: app.OperationReserve, Outcome: "insufficient_stock"})
	c.Observe(ctx, app.Operation{Name: app.OperationSweep, Outcome: "ok", Count: 4})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.operations.WithLabelValues(app.OperationReserve, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues(app.OperationReserve, "insufficient_stock")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.items.WithLabelValues(app.OperationSweep)))
	assert.Equal(t, 2, testutil.CollectAndCount(c.duration))
}

func TestNewCollector_RejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)

	_, err = NewCollector(reg)
	assert.Error(t, err)
}
