package handler

import (
	"context"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-checkout/internal/domain/account"
	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/loyalty"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

var (
	_ product.Repository = (*mockProductRepo)(nil)
	_ cart.Repository    = (*mockCartRepo)(nil)
	_ account.Repository = (*mockAccountRepo)(nil)
	_ order.Repository   = (*mockOrderRepo)(nil)
	_ auth.Repository    = (*mockAPIKeyRepo)(nil)
	_ Checkouter         = (*mockCheckout)(nil)
)

type mockProductRepo struct {
	products []product.Product
	err      error
}

func (m *mockProductRepo) List(context.Context) ([]product.Product, error) {
	return m.products, m.err
}

func (m *mockProductRepo) GetByID(_ context.Context, id int64) (*product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.products {
		if m.products[i].ID == id {
			return &m.products[i], nil
		}
	}
	return nil, product.ErrNotFound
}

func (m *mockProductRepo) GetPricing(ctx context.Context, id int64) (product.Pricing, error) {
	p, err := m.GetByID(ctx, id)
	if err != nil {
		return product.Pricing{}, err
	}
	return p.Pricing(), nil
}

type mockCartRepo struct {
	mu    sync.Mutex
	lines []cart.Line
	known map[int64]bool
}

func (m *mockCartRepo) List(_ context.Context, userID string) ([]cart.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []cart.Line
	for _, l := range m.lines {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *mockCartRepo) Add(_ context.Context, userID string, productID int64, quantity int) (*cart.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if quantity <= 0 {
		return nil, cart.ErrInvalidQuantity
	}
	if !m.known[productID] {
		return nil, product.ErrNotFound
	}
	for i := range m.lines {
		if m.lines[i].UserID == userID && m.lines[i].ProductID == productID {
			m.lines[i].Quantity += quantity
			l := m.lines[i]
			return &l, nil
		}
	}
	l := cart.Line{ID: int64(len(m.lines) + 1), UserID: userID, ProductID: productID, Quantity: quantity}
	m.lines = append(m.lines, l)
	return &l, nil
}

func (m *mockCartRepo) find(userID string, lineID int64) int {
	for i, l := range m.lines {
		if l.ID == lineID && l.UserID == userID {
			return i
		}
	}
	return -1
}

func (m *mockCartRepo) Adjust(_ context.Context, userID string, lineID int64, delta int) (*cart.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(userID, lineID)
	if i < 0 {
		return nil, cart.ErrLineNotFound
	}
	m.lines[i].Quantity = max(m.lines[i].Quantity+delta, 1)
	l := m.lines[i]
	return &l, nil
}

func (m *mockCartRepo) SetQuantity(_ context.Context, userID string, lineID int64, quantity int) (*cart.Line, error) {
	if quantity <= 0 {
		return nil, cart.ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(userID, lineID)
	if i < 0 {
		return nil, cart.ErrLineNotFound
	}
	m.lines[i].Quantity = quantity
	l := m.lines[i]
	return &l, nil
}

func (m *mockCartRepo) Remove(_ context.Context, userID string, lineID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(userID, lineID)
	if i < 0 {
		return cart.ErrLineNotFound
	}
	m.lines = append(m.lines[:i], m.lines[i+1:]...)
	return nil
}

func (m *mockCartRepo) ListLines(context.Context, string, []int64) ([]cart.Line, error) {
	return nil, errors.New("not used")
}

func (m *mockCartRepo) DeleteLines(context.Context, string, []int64) error {
	return errors.New("not used")
}

type mockAccountRepo struct {
	accounts map[string]*account.Account
}

func (m *mockAccountRepo) Get(_ context.Context, id string) (*account.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, loyalty.ErrUserNotFound
	}
	return a, nil
}

type mockOrderRepo struct {
	orders map[string]*order.Order
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, status order.Status) error {
	o, ok := m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	return nil
}

func (m *mockOrderRepo) UpdateShipping(_ context.Context, id string, s order.Shipping) error {
	o, ok := m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if s.Courier != nil {
		o.Courier = *s.Courier
	}
	if s.TrackingNumber != nil {
		o.TrackingNumber = *s.TrackingNumber
	}
	return nil
}

type mockAPIKeyRepo struct {
	keys map[string]*auth.APIKeyInfo
	err  error
}

func (m *mockAPIKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	info, ok := m.keys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}

type mockCheckout struct {
	mu    sync.Mutex
	calls []checkout.Request
	res   *checkout.Result
	err   error
}

func (m *mockCheckout) Checkout(_ context.Context, req checkout.Request) (*checkout.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	return m.res, m.err
}

func (m *mockCheckout) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
