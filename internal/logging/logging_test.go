package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cimillas/flashsale/internal/app"
)

func TestNew_RejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := New("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	logger, err := New("debug")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug level to be enabled")
	}
}

func TestOperationLogger_LevelsByOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		outcome string
		err     error
		level   zapcore.Level
	}{
		{outcome: "ok", level: zapcore.InfoLevel},
		{outcome: "insufficient_stock", err: errors.New("insufficient stock"), level: zapcore.InfoLevel},
		{outcome: "transient", err: errors.New("lock timeout"), level: zapcore.WarnLevel},
		{outcome: "error", err: errors.New("boom"), level: zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.outcome, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			ops := NewOperationLogger(zap.New(core))

			ops.Observe(context.Background(), app.Operation{
				Name:      app.OperationReserve,
				ProductID: 7,
				Quantity:  2,
				Outcome:   tt.outcome,
				Duration:  time.Millisecond,
				Err:       tt.err,
			})

			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("expected 1 entry, got %d", len(entries))
			}
			entry := entries[0]
			if entry.Level != tt.level {
				t.Fatalf("expected level %s, got %s", tt.level, entry.Level)
			}
			fields := entry.ContextMap()
			if fields["operation"] != app.OperationReserve || fields["product_id"] != int64(7) {
				t.Fatalf("unexpected fields: %v", fields)
			}
			if _, ok := fields["order_id"]; ok {
				t.Fatalf("zero order id should be omitted: %v", fields)
			}
			if _, ok := fields["error"]; ok != (tt.err != nil) {
				t.Fatalf("error field presence mismatch: %v", fields)
			}
		})
	}
}
