package app

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cimillas/flashsale/internal/domain"
	"github.com/shopspring/decimal"
)

type fakeTxKey struct{}

type fakeTx struct {
	held map[string]*sync.Mutex
	undo []func()
}

// fakeStore is an in-memory store with real row locks: a FOR UPDATE read
// blocks until the owning transaction finishes, and a failed transaction
// rolls back its writes.
type fakeStore struct {
	mu       sync.Mutex
	rowLocks map[string]*sync.Mutex
	nextID   int64
	products map[int64]domain.Product
	holds    map[int64]domain.Hold
	orders   map[int64]domain.Order
	pending  map[int64]domain.PendingWebhook
	records  []domain.IdempotencyRecord
	failures map[string]error
	txCount  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rowLocks: make(map[string]*sync.Mutex),
		products: make(map[int64]domain.Product),
		holds:    make(map[int64]domain.Hold),
		orders:   make(map[int64]domain.Order),
		pending:  make(map[int64]domain.PendingWebhook),
		failures: make(map[string]error),
	}
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(fakeTxKey{}).(*fakeTx); ok {
		return fn(ctx)
	}
	s.mu.Lock()
	s.txCount++
	s.mu.Unlock()

	tx := &fakeTx{held: make(map[string]*sync.Mutex)}
	err := fn(context.WithValue(ctx, fakeTxKey{}, tx))
	if err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
	}
	for _, m := range tx.held {
		m.Unlock()
	}
	return err
}

// failOnce makes the next call to method return err.
func (s *fakeStore) failOnce(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

func (s *fakeStore) fail(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failures[method]; ok {
		delete(s.failures, method)
		return err
	}
	return nil
}

func (s *fakeStore) lockRow(ctx context.Context, key string) {
	tx, ok := ctx.Value(fakeTxKey{}).(*fakeTx)
	if !ok {
		panic("row lock requested outside a transaction: " + key)
	}
	if _, ok := tx.held[key]; ok {
		return
	}
	s.mu.Lock()
	m, ok := s.rowLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.rowLocks[key] = m
	}
	s.mu.Unlock()

	m.Lock()
	tx.held[key] = m
}

// onRollback registers undo for the transaction in ctx. Callers hold s.mu.
func (s *fakeStore) onRollback(ctx context.Context, undo func()) {
	if tx, ok := ctx.Value(fakeTxKey{}).(*fakeTx); ok {
		tx.undo = append(tx.undo, undo)
	}
}

func (s *fakeStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeStore) GetProduct(_ context.Context, id int64) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (s *fakeStore) GetProductForUpdate(ctx context.Context, id int64) (domain.Product, error) {
	if err := s.fail("GetProductForUpdate"); err != nil {
		return domain.Product{}, err
	}
	if _, err := s.GetProduct(ctx, id); err != nil {
		return domain.Product{}, err
	}
	s.lockRow(ctx, "product:"+itoa(id))
	return s.GetProduct(ctx, id)
}

func (s *fakeStore) CreateProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	s.products[p.ID] = p
	return p, nil
}

func (s *fakeStore) SumActiveHolds(_ context.Context, productID int64, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, h := range s.holds {
		if h.ProductID == productID && h.Active(now) {
			total += h.Quantity
		}
	}
	return total, nil
}

func (s *fakeStore) SumPaidOrders(_ context.Context, productID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, o := range s.orders {
		if o.ProductID == productID && o.Status.Sold() {
			total += o.Quantity
		}
	}
	return total, nil
}

func (s *fakeStore) CreateHold(ctx context.Context, h domain.Hold) (domain.Hold, error) {
	if err := s.fail("CreateHold"); err != nil {
		return domain.Hold{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.holds {
		if existing.Token == h.Token {
			return domain.Hold{}, domain.ErrHoldTokenCollision
		}
	}
	h.ID = s.id()
	s.holds[h.ID] = h
	s.onRollback(ctx, func() { delete(s.holds, h.ID) })
	return h, nil
}

func (s *fakeStore) GetHoldByTokenForUpdate(ctx context.Context, token string) (domain.Hold, error) {
	s.mu.Lock()
	var id int64
	for _, h := range s.holds {
		if h.Token == token {
			id = h.ID
		}
	}
	s.mu.Unlock()
	if id == 0 {
		return domain.Hold{}, domain.ErrHoldNotFound
	}
	return s.GetHoldForUpdate(ctx, id)
}

func (s *fakeStore) GetHoldForUpdate(ctx context.Context, id int64) (domain.Hold, error) {
	if err := s.fail("GetHoldForUpdate"); err != nil {
		return domain.Hold{}, err
	}
	s.lockRow(ctx, "hold:"+itoa(id))
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[id]
	if !ok {
		return domain.Hold{}, domain.ErrHoldNotFound
	}
	return h, nil
}

func (s *fakeStore) MarkHoldUsed(ctx context.Context, holdID int64) error {
	if err := s.fail("MarkHoldUsed"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.holds[holdID]
	if !ok {
		return domain.ErrHoldNotFound
	}
	next := prev
	next.Used = true
	s.holds[holdID] = next
	s.onRollback(ctx, func() { s.holds[holdID] = prev })
	return nil
}

func (s *fakeStore) ListExpiredHolds(_ context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Hold
	for _, h := range s.holds {
		if !h.Used && h.Expired(now) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) CreateOrder(ctx context.Context, o domain.Order) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orders {
		if existing.HoldID == o.HoldID {
			return domain.Order{}, domain.ErrHoldInvalid
		}
	}
	if o.ID == 0 {
		o.ID = s.id()
	}
	s.orders[o.ID] = o
	s.onRollback(ctx, func() { delete(s.orders, o.ID) })
	return o, nil
}

func (s *fakeStore) GetOrderForUpdate(ctx context.Context, id int64) (domain.Order, error) {
	if err := s.fail("GetOrderForUpdate"); err != nil {
		return domain.Order{}, err
	}
	s.mu.Lock()
	_, ok := s.orders[id]
	s.mu.Unlock()
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	s.lockRow(ctx, "order:"+itoa(id))
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id], nil
}

func (s *fakeStore) UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus, at time.Time) error {
	if err := s.fail("UpdateOrderStatus"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	next := prev
	next.Status = status
	next.UpdatedAt = at
	s.orders[id] = next
	s.onRollback(ctx, func() { s.orders[id] = prev })
	return nil
}

func (s *fakeStore) CreatePendingWebhook(ctx context.Context, p domain.PendingWebhook) (domain.PendingWebhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	s.pending[p.ID] = p
	s.onRollback(ctx, func() { delete(s.pending, p.ID) })
	return p, nil
}

func (s *fakeStore) ListPendingWebhooks(_ context.Context, since time.Time, limit int) ([]domain.PendingWebhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PendingWebhook
	for _, p := range s.pending {
		if !p.Processed && !p.CreatedAt.Before(since) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) GetPendingWebhookForUpdate(ctx context.Context, id int64) (domain.PendingWebhook, error) {
	if err := s.fail("GetPendingWebhookForUpdate"); err != nil {
		return domain.PendingWebhook{}, err
	}
	s.lockRow(ctx, "pending:"+itoa(id))
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return domain.PendingWebhook{}, domain.ErrPendingWebhookNotFound
	}
	return p, nil
}

func (s *fakeStore) MarkPendingWebhookProcessed(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.pending[id]
	if !ok {
		return domain.ErrPendingWebhookNotFound
	}
	next := prev
	next.Processed = true
	next.ProcessedAt = &at
	s.pending[id] = next
	s.onRollback(ctx, func() { s.pending[id] = prev })
	return nil
}

func (s *fakeStore) DeletePendingWebhooksBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, p := range s.pending {
		if p.CreatedAt.Before(cutoff) {
			delete(s.pending, id)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) FindIdempotencyRecord(_ context.Context, key, fingerprint string) (*domain.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.Key == key && rec.Fingerprint == fingerprint {
			found := rec
			return &found, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) IdempotencyKeyExists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.Key == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) LockIdempotencyKey(ctx context.Context, key string) error {
	if err := s.fail("LockIdempotencyKey"); err != nil {
		return err
	}
	s.lockRow(ctx, "idempotency:"+key)
	return nil
}

func (s *fakeStore) SaveIdempotencyRecord(ctx context.Context, rec domain.IdempotencyRecord) (domain.IdempotencyRecord, error) {
	if err := s.fail("SaveIdempotencyRecord"); err != nil {
		return domain.IdempotencyRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.Key == rec.Key && existing.Fingerprint == rec.Fingerprint {
			return existing, nil
		}
	}
	s.records = append(s.records, rec)
	s.onRollback(ctx, func() {
		for i, existing := range s.records {
			if existing.Key == rec.Key && existing.Fingerprint == rec.Fingerprint {
				s.records = append(s.records[:i], s.records[i+1:]...)
				return
			}
		}
	})
	return rec, nil
}

func (s *fakeStore) DeleteIdempotencyRecordsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var n int64
	for _, rec := range s.records {
		if rec.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return n, nil
}

func (s *fakeStore) hold(id int64) domain.Hold {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holds[id]
}

func (s *fakeStore) order(id int64) domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *fakeStore) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *fakeStore) seedProduct(t *testing.T, stock int, price string) domain.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), domain.Product{
		Name:       "Limited sneaker",
		UnitPrice:  decimal.RequireFromString(price),
		TotalStock: stock,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p
}

func (s *fakeStore) seedHold(t *testing.T, h domain.Hold) domain.Hold {
	t.Helper()
	if h.Token == "" {
		h.Token = NewHoldToken()
	}
	created, err := s.CreateHold(context.Background(), h)
	if err != nil {
		t.Fatalf("seed hold: %v", err)
	}
	return created
}

func (s *fakeStore) seedOrder(t *testing.T, o domain.Order) domain.Order {
	t.Helper()
	created, err := s.CreateOrder(context.Background(), o)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return created
}

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []int64
}

func (r *recordingInvalidator) Invalidate(_ context.Context, productID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, productID)
}

func (r *recordingInvalidator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

type recordingObserver struct {
	mu  sync.Mutex
	ops []Operation
}

func (r *recordingObserver) Observe(_ context.Context, op Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *recordingObserver) last() Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ops) == 0 {
		return Operation{}
	}
	return r.ops[len(r.ops)-1]
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
