package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cimillas/flashsale/internal/clock"
	"github.com/cimillas/flashsale/internal/domain"
	"github.com/cimillas/flashsale/internal/idempotency"
	"go.uber.org/zap"
)

type SettlementRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// GetOrderForUpdate returns domain.ErrOrderNotFound for unknown ids.
	GetOrderForUpdate(ctx context.Context, id int64) (domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus, at time.Time) error
	MarkHoldUsed(ctx context.Context, holdID int64) error

	CreatePendingWebhook(ctx context.Context, p domain.PendingWebhook) (domain.PendingWebhook, error)
	// ListPendingWebhooks returns unprocessed rows created at or after since,
	// oldest first.
	ListPendingWebhooks(ctx context.Context, since time.Time, limit int) ([]domain.PendingWebhook, error)
	GetPendingWebhookForUpdate(ctx context.Context, id int64) (domain.PendingWebhook, error)
	MarkPendingWebhookProcessed(ctx context.Context, id int64, at time.Time) error

	DeletePendingWebhooksBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteIdempotencyRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type SettlementStatus string

const (
	SettlementQueued           SettlementStatus = "queued"
	SettlementAlreadyProcessed SettlementStatus = "already_processed"
	SettlementProcessed        SettlementStatus = "processed"
	SettlementRejected         SettlementStatus = "rejected"
)

// Rejection reasons recorded in a rejected SettlementResponse.
const (
	ReasonAmountMismatch      = "amount_mismatch"
	ReasonCurrencyMismatch    = "currency_mismatch"
	ReasonOrderAlreadySettled = "order_already_settled"
)

// SettlementResponse is the body stored for an idempotency key and replayed
// on every retry.
type SettlementResponse struct {
	Status      SettlementStatus   `json:"status"`
	Message     string             `json:"message"`
	OrderID     int64              `json:"order_id"`
	OrderStatus domain.OrderStatus `json:"order_status,omitempty"`
	Reason      string             `json:"reason,omitempty"`
}

// Err returns the error a rejected response stands for, or nil.
func (r SettlementResponse) Err() error {
	if r.Status != SettlementRejected {
		return nil
	}
	switch r.Reason {
	case ReasonAmountMismatch:
		return domain.ErrAmountMismatch
	case ReasonCurrencyMismatch:
		return domain.ErrCurrencyMismatch
	case ReasonOrderAlreadySettled:
		return domain.ErrOrderAlreadySettled
	default:
		return fmt.Errorf("settlement rejected: %s", r.Reason)
	}
}

type SettleResult struct {
	// Body holds the exact stored bytes; replays return them unchanged.
	Body     []byte
	Response SettlementResponse
	Replayed bool
}

type SettlementService struct {
	repo          SettlementRepository
	idem          *idempotency.Cache
	stock         StockInvalidator
	clock         clock.Clock
	currency      string
	pendingWindow time.Duration
	retention     time.Duration
	batchSize     int
	observer      Observer
	logger        *zap.Logger
}

const (
	defaultCurrency      = "USD"
	defaultPendingWindow = 24 * time.Hour
	defaultRetention     = 7 * 24 * time.Hour
	defaultBatchSize     = 500
)

// errLostRace aborts a settlement whose response was already stored by a
// concurrent call with the same key and payload.
var errLostRace = errors.New("idempotency record stored concurrently")

func NewSettlementService(repo SettlementRepository, idem *idempotency.Cache, stock StockInvalidator, clk clock.Clock, opts ...SettlementServiceOption) *SettlementService {
	svc := &SettlementService{
		repo:          repo,
		idem:          idem,
		stock:         stock,
		clock:         clk,
		currency:      defaultCurrency,
		pendingWindow: defaultPendingWindow,
		retention:     defaultRetention,
		batchSize:     defaultBatchSize,
		observer:      nopObserver{},
		logger:        zap.NewNop(),
	}
	if svc.stock == nil {
		svc.stock = nopInvalidator{}
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type SettlementServiceOption func(*SettlementService)

// WithCurrency sets the store currency paid notifications must carry.
func WithCurrency(code string) SettlementServiceOption {
	return func(s *SettlementService) {
		if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
			s.currency = code
		}
	}
}

// WithPendingWindow bounds how far back reconciliation looks.
func WithPendingWindow(d time.Duration) SettlementServiceOption {
	return func(s *SettlementService) {
		if d > 0 {
			s.pendingWindow = d
		}
	}
}

// WithRetention sets the age after which Prune deletes settlement records.
// Zero disables pruning.
func WithRetention(d time.Duration) SettlementServiceOption {
	return func(s *SettlementService) {
		if d >= 0 {
			s.retention = d
		}
	}
}

func WithSettlementBatchSize(n int) SettlementServiceOption {
	return func(s *SettlementService) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithSettlementObserver(o Observer) SettlementServiceOption {
	return func(s *SettlementService) {
		if o != nil {
			s.observer = o
		}
	}
}

func WithSettlementLogger(logger *zap.Logger) SettlementServiceOption {
	return func(s *SettlementService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Settle applies a payment notification exactly once per (key, payload).
//
// Repeated calls with the same key and identical payload return the stored
// bytes without side effects. Rejected settlements are stored too; they are
// returned together with an error wrapping the matching domain sentinel, on
// the first call and on every replay. Transient failures are never stored.
func (s *SettlementService) Settle(ctx context.Context, key string, payload []byte) (result SettleResult, err error) {
	start := time.Now()
	var orderID, productID int64
	defer func() {
		outcome := string(result.Response.Status)
		if result.Replayed {
			outcome = "replayed"
		} else if outcome == "" || (err != nil && result.Response.Status != SettlementRejected) {
			outcome = errorOutcome(err)
		}
		if orderID == 0 {
			orderID = result.Response.OrderID
		}
		s.observer.Observe(ctx, Operation{
			Name:      OperationSettle,
			ProductID: productID,
			OrderID:   orderID,
			Outcome:   outcome,
			Duration:  time.Since(start),
			Err:       err,
		})
	}()

	key = strings.TrimSpace(key)
	if key == "" {
		return SettleResult{}, domain.ErrIdempotencyKeyRequired
	}

	fingerprint := idempotency.Fingerprint(payload)
	if stored, ok, err := s.idem.Lookup(ctx, key, fingerprint); err != nil {
		return SettleResult{}, err
	} else if ok {
		return replay(stored)
	}

	notification, err := domain.ParsePaymentNotification(payload)
	if err != nil {
		return SettleResult{}, err
	}
	orderID = notification.OrderID

	var (
		body     []byte
		changed  bool
		replayed bool
	)
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		// Concurrent calls with the same key queue here; the loser sees the
		// winner's record, or a conflict when its payload differs.
		stored, ok, err := s.idem.Claim(txCtx, key, fingerprint)
		if err != nil {
			return err
		}
		if ok {
			body, replayed = stored, true
			return nil
		}

		now := s.clock.Now()
		var resp SettlementResponse

		order, err := s.repo.GetOrderForUpdate(txCtx, notification.OrderID)
		switch {
		case errors.Is(err, domain.ErrOrderNotFound):
			if _, err := s.repo.CreatePendingWebhook(txCtx, domain.PendingWebhook{
				OrderID:   notification.OrderID,
				PaymentID: notification.PaymentID,
				Status:    notification.Outcome.Status(),
				Payload:   payload,
				CreatedAt: now,
			}); err != nil {
				return err
			}
			resp = SettlementResponse{
				Status:  SettlementQueued,
				Message: "Order not found yet. Webhook queued for later processing.",
				OrderID: notification.OrderID,
			}
		case err != nil:
			return err
		default:
			productID = order.ProductID
			applied, err := s.applyOutcome(txCtx, order, notification.Outcome, now)
			if err != nil {
				return err
			}
			resp = applied.response
			changed = applied.changed
		}

		encoded, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("encode settlement response: %w", err)
		}
		stored, err = s.idem.Remember(txCtx, key, fingerprint, encoded)
		if err != nil {
			return err
		}
		body = stored
		if !bytes.Equal(stored, encoded) {
			return errLostRace
		}
		return nil
	})
	if errors.Is(err, errLostRace) || (err == nil && replayed) {
		return replay(body)
	}
	if err != nil {
		return SettleResult{}, err
	}

	if changed {
		s.stock.Invalidate(ctx, productID)
	}
	return decode(body, false)
}

type appliedOutcome struct {
	response SettlementResponse
	changed  bool
}

// applyOutcome moves a locked order to the outcome's terminal status. Orders
// never leave a terminal status; a conflicting outcome is rejected.
func (s *SettlementService) applyOutcome(ctx context.Context, order domain.Order, outcome domain.PaymentOutcome, now time.Time) (appliedOutcome, error) {
	target := outcome.OrderStatus()
	if order.Status == target {
		return appliedOutcome{response: SettlementResponse{
			Status:      SettlementAlreadyProcessed,
			Message:     fmt.Sprintf("Order is already %s", order.Status),
			OrderID:     order.ID,
			OrderStatus: order.Status,
		}}, nil
	}
	if !order.Status.CanTransition(target) {
		return rejected(order, ReasonOrderAlreadySettled,
			fmt.Sprintf("Order is already %s", order.Status)), nil
	}

	var message string
	switch o := outcome.(type) {
	case domain.Paid:
		if !strings.EqualFold(o.Currency, s.currency) {
			return rejected(order, ReasonCurrencyMismatch,
				fmt.Sprintf("Payment currency %s does not match %s", o.Currency, s.currency)), nil
		}
		if !o.Amount.Equal(order.Amount) {
			return rejected(order, ReasonAmountMismatch,
				fmt.Sprintf("Payment amount %s does not match order amount %s", o.Amount.StringFixed(2), order.Amount.StringFixed(2))), nil
		}
		if err := s.repo.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPaid, now); err != nil {
			return appliedOutcome{}, err
		}
		message = "Payment successful"
	case domain.Failed, domain.Cancelled:
		if err := s.repo.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusCancelled, now); err != nil {
			return appliedOutcome{}, err
		}
		if err := s.repo.MarkHoldUsed(ctx, order.HoldID); err != nil {
			return appliedOutcome{}, err
		}
		message = "Payment " + string(outcome.Status())
	default:
		return appliedOutcome{}, fmt.Errorf("unsupported payment outcome %T", outcome)
	}

	return appliedOutcome{
		response: SettlementResponse{
			Status:      SettlementProcessed,
			Message:     message,
			OrderID:     order.ID,
			OrderStatus: target,
		},
		changed: true,
	}, nil
}

func rejected(order domain.Order, reason, message string) appliedOutcome {
	return appliedOutcome{response: SettlementResponse{
		Status:      SettlementRejected,
		Message:     message,
		OrderID:     order.ID,
		OrderStatus: order.Status,
		Reason:      reason,
	}}
}

func replay(body []byte) (SettleResult, error) {
	return decode(body, true)
}

func decode(body []byte, replayed bool) (SettleResult, error) {
	var resp SettlementResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return SettleResult{}, fmt.Errorf("decode stored settlement response: %w", err)
	}
	result := SettleResult{Body: body, Response: resp, Replayed: replayed}
	return result, resp.Err()
}

type ReconcileResult struct {
	Processed int
	Rejected  int
	Remaining int
}

// Reconcile applies queued notifications whose order now exists. Each row is
// settled in its own transaction; rows older than the pending window are
// ignored.
func (s *SettlementService) Reconcile(ctx context.Context) (result ReconcileResult, err error) {
	start := time.Now()
	defer func() {
		s.observer.Observe(ctx, Operation{
			Name:     OperationReconcile,
			Outcome:  outcomeOf(err, "ok"),
			Count:    result.Processed + result.Rejected,
			Duration: time.Since(start),
			Err:      err,
		})
	}()

	since := s.clock.Now().Add(-s.pendingWindow)
	pending, err := s.repo.ListPendingWebhooks(ctx, since, s.batchSize)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("list pending webhooks: %w", err)
	}

	var errs []error
	for _, p := range pending {
		status, err := s.reconcileOne(ctx, p.ID)
		if err != nil {
			result.Remaining++
			s.logger.Warn("reconcile pending webhook failed",
				zap.Int64("pending_webhook_id", p.ID),
				zap.Int64("order_id", p.OrderID),
				zap.Bool("transient", domain.IsTransient(err)),
				zap.Error(err))
			if !domain.IsTransient(err) {
				errs = append(errs, fmt.Errorf("pending webhook %d: %w", p.ID, err))
			}
			continue
		}
		switch status {
		case reconcileApplied:
			result.Processed++
		case reconcileRejected:
			result.Rejected++
		case reconcileWaiting:
			result.Remaining++
		}
	}
	return result, errors.Join(errs...)
}

type reconcileStatus int

const (
	reconcileSkipped reconcileStatus = iota
	reconcileWaiting
	reconcileApplied
	reconcileRejected
)

func (s *SettlementService) reconcileOne(ctx context.Context, id int64) (reconcileStatus, error) {
	var (
		status    reconcileStatus
		changed   bool
		productID int64
	)
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		p, err := s.repo.GetPendingWebhookForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if p.Processed {
			status = reconcileSkipped
			return nil
		}

		now := s.clock.Now()
		notification, err := domain.ParsePaymentNotification(p.Payload)
		if err != nil {
			s.logger.Warn("discarding unparseable pending webhook", zap.Int64("pending_webhook_id", p.ID), zap.Error(err))
			status = reconcileRejected
			return s.repo.MarkPendingWebhookProcessed(txCtx, p.ID, now)
		}

		order, err := s.repo.GetOrderForUpdate(txCtx, notification.OrderID)
		if errors.Is(err, domain.ErrOrderNotFound) {
			status = reconcileWaiting
			return nil
		}
		if err != nil {
			return err
		}

		applied, err := s.applyOutcome(txCtx, order, notification.Outcome, now)
		if err != nil {
			return err
		}
		if applied.response.Status == SettlementRejected {
			status = reconcileRejected
		} else {
			status = reconcileApplied
		}
		changed = applied.changed
		productID = order.ProductID
		return s.repo.MarkPendingWebhookProcessed(txCtx, p.ID, now)
	})
	if err != nil {
		return reconcileSkipped, err
	}
	if changed {
		s.stock.Invalidate(ctx, productID)
	}
	return status, nil
}

type PruneResult struct {
	IdempotencyRecords int64
	PendingWebhooks    int64
}

// Prune deletes idempotency records and pending webhooks older than the
// retention window.
func (s *SettlementService) Prune(ctx context.Context) (result PruneResult, err error) {
	start := time.Now()
	defer func() {
		s.observer.Observe(ctx, Operation{
			Name:     OperationPrune,
			Outcome:  outcomeOf(err, "ok"),
			Count:    int(result.IdempotencyRecords + result.PendingWebhooks),
			Duration: time.Since(start),
			Err:      err,
		})
	}()

	if s.retention == 0 {
		return PruneResult{}, nil
	}
	cutoff := s.clock.Now().Add(-s.retention)

	records, err := s.repo.DeleteIdempotencyRecordsBefore(ctx, cutoff)
	if err != nil {
		return PruneResult{}, fmt.Errorf("prune idempotency records: %w", err)
	}
	webhooks, err := s.repo.DeletePendingWebhooksBefore(ctx, cutoff)
	if err != nil {
		return PruneResult{IdempotencyRecords: records}, fmt.Errorf("prune pending webhooks: %w", err)
	}
	return PruneResult{IdempotencyRecords: records, PendingWebhooks: webhooks}, nil
}
