package checkout

import (
	"context"
	"slices"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/loyalty"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

var errInjected = errors.New("injected failure")

// memStore is an in-memory Store. Writes are staged per unit of work and
// applied only when fn returns nil. Ledgers are locked per user for the whole
// unit of work.
type memStore struct {
	mu       sync.Mutex
	users    map[string]loyalty.Ledger
	lines    map[int64]cart.Line
	products map[int64]product.Pricing
	orders   []*order.Order

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	// failOn names a Tx method that returns errInjected.
	failOn string
	// conflict makes SaveLedger report a concurrent modification.
	conflict bool
	calls    int
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]loyalty.Ledger),
		lines:    make(map[int64]cart.Line),
		products: make(map[int64]product.Pricing),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *memStore) addProduct(p product.Pricing) {
	s.products[p.ProductID] = p
}

func (s *memStore) addLine(l cart.Line) {
	s.lines[l.ID] = l
}

func (s *memStore) ledger(userID string) loyalty.Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID]
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) hasLine(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lines[id]
	return ok
}

func (s *memStore) userLock(userID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	m, ok := s.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[userID] = m
	}
	return m
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	tx := &memTx{store: s}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

type memTx struct {
	store  *memStore
	locked []*sync.Mutex

	created   []*order.Order
	deleted   []int64
	ledgerFor string
	prev      *loyalty.Ledger
	next      *loyalty.Ledger
}

var _ Tx = (*memTx)(nil)

func (tx *memTx) release() {
	for _, m := range tx.locked {
		m.Unlock()
	}
}

func (tx *memTx) fail(method string) error {
	if tx.store.failOn == method {
		return errInjected
	}
	return nil
}

func (tx *memTx) LockLedger(_ context.Context, userID string) (loyalty.Ledger, error) {
	if err := tx.fail("LockLedger"); err != nil {
		return loyalty.Ledger{}, err
	}
	m := tx.store.userLock(userID)
	m.Lock()
	tx.locked = append(tx.locked, m)

	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	l, ok := tx.store.users[userID]
	if !ok {
		return loyalty.Ledger{}, loyalty.ErrUserNotFound
	}
	return l, nil
}

func (tx *memTx) ListLines(_ context.Context, userID string, ids []int64) ([]cart.Line, error) {
	if err := tx.fail("ListLines"); err != nil {
		return nil, err
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	var out []cart.Line
	for _, id := range ids {
		if l, ok := tx.store.lines[id]; ok && l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (tx *memTx) GetPricings(_ context.Context, productIDs []int64) (map[int64]product.Pricing, error) {
	if err := tx.fail("GetPricings"); err != nil {
		return nil, err
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	out := make(map[int64]product.Pricing, len(productIDs))
	for _, id := range productIDs {
		if p, ok := tx.store.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (tx *memTx) CreateOrder(_ context.Context, o *order.Order) error {
	if err := tx.fail("CreateOrder"); err != nil {
		return err
	}
	tx.created = append(tx.created, o)
	return nil
}

func (tx *memTx) DeleteLines(_ context.Context, _ string, ids []int64) error {
	if err := tx.fail("DeleteLines"); err != nil {
		return err
	}
	tx.deleted = append(tx.deleted, ids...)
	return nil
}

func (tx *memTx) SaveLedger(_ context.Context, userID string, prev, next loyalty.Ledger) error {
	if err := tx.fail("SaveLedger"); err != nil {
		return err
	}
	if tx.store.conflict {
		return loyalty.ErrConflict
	}
	tx.ledgerFor = userID
	tx.prev, tx.next = &prev, &next
	return nil
}

func (tx *memTx) commit() error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.next != nil {
		if s.users[tx.ledgerFor].Version != tx.prev.Version {
			return loyalty.ErrConflict
		}
		next := *tx.next
		next.Version = tx.prev.Version + 1
		s.users[tx.ledgerFor] = next
	}
	s.orders = append(s.orders, tx.created...)
	for id := range s.lines {
		if slices.Contains(tx.deleted, id) {
			delete(s.lines, id)
		}
	}
	return nil
}

type mockNotifier struct {
	mu     sync.Mutex
	placed []order.Placed
	ctxErr []error
	err    error
}

func (m *mockNotifier) NotifyOrderPlaced(ctx context.Context, p order.Placed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placed = append(m.placed, p)
	m.ctxErr = append(m.ctxErr, ctx.Err())
	return m.err
}
