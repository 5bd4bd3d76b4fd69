package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/functions"
	"github.com/fjod/storefront/internal/repository"
)

type mockStore struct {
	mu        sync.Mutex
	addresses map[string]*domain.ShippingAddress
	discounts map[string]*domain.DiscountCode
	products  map[string]*domain.Product
	success   map[string]*domain.Order
	failed    map[string]*domain.Order
	touched   []string

	successErr error
	touchErr   error
	invoiceErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		addresses: make(map[string]*domain.ShippingAddress),
		discounts: make(map[string]*domain.DiscountCode),
		products:  make(map[string]*domain.Product),
		success:   make(map[string]*domain.Order),
		failed:    make(map[string]*domain.Order),
	}
}

func (s *mockStore) GetAddress(_ context.Context, userID, id string) (*domain.ShippingAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.addresses[id]
	if !ok || a.UserID != userID {
		return nil, repository.ErrNotFound
	}
	out := *a
	return &out, nil
}

func (s *mockStore) TouchAddress(_ context.Context, _, id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.touchErr != nil {
		return s.touchErr
	}
	s.touched = append(s.touched, id)
	return nil
}

func (s *mockStore) FindDiscountByCode(_ context.Context, code string) (*domain.DiscountCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.discounts[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *d
	return &out, nil
}

func (s *mockStore) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (s *mockStore) CreateSuccessOrder(_ context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.successErr != nil {
		return s.successErr
	}
	out := *o
	s.success[o.OrderNumber] = &out
	return nil
}

func (s *mockStore) CreateFailedOrder(_ context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *o
	s.failed[o.OrderNumber] = &out
	return nil
}

func (s *mockStore) SetInvoiceURL(_ context.Context, orderNumber, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invoiceErr != nil {
		return s.invoiceErr
	}
	o, ok := s.success[orderNumber]
	if !ok {
		return repository.ErrNotFound
	}
	o.InvoiceURL = url
	return nil
}

func (s *mockStore) GetOrder(_ context.Context, userID, orderNumber string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range []map[string]*domain.Order{s.success, s.failed} {
		if o, ok := m[orderNumber]; ok && o.UserID == userID {
			out := *o
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *mockStore) successOrder(n string) (*domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.success[n]
	return o, ok
}

func (s *mockStore) failedOrder(n string) (*domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.failed[n]
	return o, ok
}

type mockAllocator struct {
	mu    sync.Mutex
	next  int64
	calls int
	err   error
}

func (a *mockAllocator) Next(context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	a.next++
	return fmt.Sprintf("#UA%d", 1000+a.next), nil
}

type fixedRates domain.ShippingRates

func (r fixedRates) Rates(context.Context) domain.ShippingRates {
	return domain.ShippingRates(r)
}

type mockFunctions struct {
	mu            sync.Mutex
	paymentOrders []functions.PaymentOrderRequest
	invoices      []string
	confirmations []string

	paymentErr error
	invoiceErr error
	emailErr   error
}

func (f *mockFunctions) CreatePaymentOrder(_ context.Context, req functions.PaymentOrderRequest) (*functions.PaymentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paymentOrders = append(f.paymentOrders, req)
	if f.paymentErr != nil {
		return nil, f.paymentErr
	}
	return &functions.PaymentOrder{
		ID:       "order_" + req.Receipt[3:],
		Amount:   int64(req.Amount * 100),
		Currency: "INR",
	}, nil
}

func (f *mockFunctions) GenerateInvoice(_ context.Context, o *domain.Order) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoices = append(f.invoices, o.OrderNumber)
	if f.invoiceErr != nil {
		return "", f.invoiceErr
	}
	return "invoices/" + o.OrderNumber[1:] + ".pdf", nil
}

func (f *mockFunctions) SendOrderConfirmation(_ context.Context, o *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmations = append(f.confirmations, o.OrderNumber)
	return f.emailErr
}

func (f *mockFunctions) paymentCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paymentOrders)
}

type mockPublisher struct {
	mu     sync.Mutex
	placed []string
	failed []string
	err    error
}

func (p *mockPublisher) OrderPlaced(_ context.Context, o *domain.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, o.OrderNumber)
	return p.err
}

func (p *mockPublisher) OrderFailed(_ context.Context, o *domain.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, o.OrderNumber)
	return p.err
}

// approvingGateway signs every payment the way the real gateway would.
type approvingGateway struct {
	secret string
}

func (g approvingGateway) Collect(_ context.Context, a *Attempt) (PaymentResult, error) {
	paymentID := "pay_" + a.GatewayOrder.ID
	return PaymentResult{
		PaymentID:      paymentID,
		GatewayOrderID: a.GatewayOrder.ID,
		Signature:      Sign(g.secret, a.GatewayOrder.ID, paymentID),
	}, nil
}

type decliningGateway struct {
	failure domain.PaymentFailure
}

func (g decliningGateway) Collect(context.Context, *Attempt) (PaymentResult, error) {
	f := g.failure
	return PaymentResult{Error: &f}, nil
}

type brokenGateway struct{}

func (brokenGateway) Collect(context.Context, *Attempt) (PaymentResult, error) {
	return PaymentResult{}, errors.New("payment sheet crashed")
}
