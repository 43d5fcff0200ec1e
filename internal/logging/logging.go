// Package logging builds the process logger and reports service operations
// through it.
package logging

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cimillas/flashsale/internal/app"
)

// New returns a JSON production logger at the given level.
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if strings.TrimSpace(level) != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}
	return cfg.Build()
}

// OperationLogger writes one structured entry per service operation.
type OperationLogger struct {
	logger *zap.Logger
}

var _ app.Observer = (*OperationLogger)(nil)

func NewOperationLogger(logger *zap.Logger) *OperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperationLogger{logger: logger}
}

func (l *OperationLogger) Observe(_ context.Context, op app.Operation) {
	fields := make([]zap.Field, 0, 8)
	fields = append(fields,
		zap.String("operation", op.Name),
		zap.String("outcome", op.Outcome),
		zap.Duration("duration", op.Duration),
	)
	if op.ProductID != 0 {
		fields = append(fields, zap.Int64("product_id", op.ProductID))
	}
	if op.HoldID != 0 {
		fields = append(fields, zap.Int64("hold_id", op.HoldID))
	}
	if op.OrderID != 0 {
		fields = append(fields, zap.Int64("order_id", op.OrderID))
	}
	if op.Quantity != 0 {
		fields = append(fields, zap.Int("quantity", op.Quantity))
	}
	if op.Count != 0 {
		fields = append(fields, zap.Int("count", op.Count))
	}
	if op.Err != nil {
		fields = append(fields, zap.Error(op.Err))
	}

	switch op.Outcome {
	case "error":
		l.logger.Error("operation failed", fields...)
	case "transient":
		l.logger.Warn("operation failed transiently", fields...)
	default:
		l.logger.Info("operation completed", fields...)
	}
}
