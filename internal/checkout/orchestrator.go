package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/functions"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/internal/repository"
	"go.uber.org/zap"
)

const (
	DefaultAttemptTTL = 15 * time.Minute
	// DefaultSelectionTTL is how long an untouched discount or shipping
	// choice is kept.
	DefaultSelectionTTL = 2 * time.Hour

	FailureAbandoned         = "ABANDONED"
	FailureSignatureMismatch = "SIGNATURE_MISMATCH"
	FailureGateway           = "GATEWAY_ERROR"
)

type Config struct {
	// KeyID is handed to the payment page; KeySecret signs payments.
	KeyID     string
	KeySecret string
	// AttemptTTL is how long a pending payment may stay unanswered.
	AttemptTTL    time.Duration
	SelectionTTL  time.Duration
	SweepInterval time.Duration
}

type BeginRequest struct {
	UserID        string `json:"-"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Notes         string `json:"notes,omitempty"`
	AddressID     string `json:"address_id"`
	AcceptedTerms bool   `json:"accepted_terms"`
}

type Prefill struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

// Attempt is one checkout run waiting for its payment result.
type Attempt struct {
	OrderNumber  string                 `json:"order_number"`
	UserID       string                 `json:"user_id"`
	Status       Status                 `json:"status"`
	KeyID        string                 `json:"key_id"`
	GatewayOrder functions.PaymentOrder `json:"gateway_order"`
	Prefill      Prefill                `json:"prefill"`
	Quote        pricing.Breakdown      `json:"quote"`
	CreatedAt    time.Time              `json:"created_at"`

	draft     domain.Order
	addressID string
}

func (a *Attempt) transition(to Status) error {
	if !CanTransitionTo(a.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, a.Status, to)
	}
	a.Status = to
	return nil
}

// PaymentResult is what the gateway reported: either the payment triple or a
// failure.
type PaymentResult struct {
	PaymentID      string                 `json:"payment_id,omitempty"`
	GatewayOrderID string                 `json:"order_id,omitempty"`
	Signature      string                 `json:"signature,omitempty"`
	Error          *domain.PaymentFailure `json:"error,omitempty"`
}

type Outcome struct {
	Order       *domain.Order     `json:"order"`
	Status      Status            `json:"status"`
	Bookkeeping *BookkeepingError `json:"-"`
}

type Orchestrator struct {
	store     Store
	carts     Carts
	allocator Allocator
	rates     RateSource
	functions Functions
	publisher Publisher
	cfg       Config
	log       *zap.Logger
	now       func() time.Time

	mu         sync.Mutex
	inFlight   map[string]struct{}
	attempts   map[string]*Attempt
	selections map[string]selection

	stopSweep chan struct{}
	sweepOnce sync.Once
	wg        sync.WaitGroup
}

func New(store Store, carts Carts, allocator Allocator, rates RateSource, fns Functions, publisher Publisher, cfg Config, log *zap.Logger) *Orchestrator {
	if cfg.AttemptTTL <= 0 {
		cfg.AttemptTTL = DefaultAttemptTTL
	}
	if cfg.SelectionTTL <= 0 {
		cfg.SelectionTTL = DefaultSelectionTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = cfg.AttemptTTL / 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		store:      store,
		carts:      carts,
		allocator:  allocator,
		rates:      rates,
		functions:  fns,
		publisher:  publisher,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
		inFlight:   make(map[string]struct{}),
		attempts:   make(map[string]*Attempt),
		selections: make(map[string]selection),
		stopSweep:  make(chan struct{}),
	}
}

// Begin validates the checkout form, prices the cart, reserves an order
// number and opens a gateway order. Until the attempt is completed or swept
// the user cannot begin another one.
func (o *Orchestrator) Begin(ctx context.Context, req BeginRequest) (*Attempt, error) {
	if !o.acquire(req.UserID) {
		return nil, ErrCheckoutInProgress
	}
	attempt, err := o.begin(ctx, req)
	if err != nil {
		o.release(req.UserID)
		return nil, err
	}
	return attempt, nil
}

func (o *Orchestrator) begin(ctx context.Context, req BeginRequest) (*Attempt, error) {
	log := logger.FromContextOr(ctx, o.log).With(zap.String("user_id", req.UserID))
	a := &Attempt{UserID: req.UserID, Status: StatusIdle, KeyID: o.cfg.KeyID}

	addr, lines, err := o.validate(ctx, req)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			metrics.RecordCheckout(metrics.OutcomeValidationFailed)
		}
		return nil, err
	}
	if err := a.transition(StatusAddressReady); err != nil {
		return nil, err
	}

	sel := o.selectionFor(req.UserID)
	discount := sel.discount
	if discount != nil {
		// the code may have been switched off since it was applied
		if discount, err = o.lookupDiscount(ctx, discount.Code); err != nil {
			metrics.RecordCheckout(metrics.OutcomeValidationFailed)
			return nil, err
		}
	}
	quote := pricing.Quote(lines, discount, sel.tier, o.rates.Rates(ctx)).Rounded()

	orderNumber, err := o.allocator.Next(ctx)
	if err != nil {
		log.Error("order number allocation failed", zap.Error(err))
		metrics.RecordCheckout(metrics.OutcomeAllocationFailed)
		return nil, &AllocationError{Err: err}
	}
	metrics.RecordOrderNumber()
	a.OrderNumber = orderNumber
	if err := a.transition(StatusOrderNumberAllocated); err != nil {
		return nil, err
	}

	gatewayOrder, err := o.functions.CreatePaymentOrder(ctx, functions.PaymentOrderRequest{
		Amount:  quote.GrandTotal,
		Receipt: orderNumber,
	})
	if err != nil {
		log.Error("payment order creation failed", zap.String("order_number", orderNumber), zap.Error(err))
		metrics.RecordCheckout(metrics.OutcomeGatewayFailed)
		return nil, fmt.Errorf("failed to create payment order: %w", err)
	}
	if err := a.transition(StatusPaymentPending); err != nil {
		return nil, err
	}

	now := o.now()
	a.GatewayOrder = *gatewayOrder
	a.Prefill = Prefill{Name: req.Name, Email: req.Email, Contact: req.Phone}
	a.Quote = quote
	a.CreatedAt = now
	a.addressID = addr.ID
	a.draft = domain.Order{
		OrderNumber: orderNumber,
		OrderDate:   now.Format("2006-01-02"),
		UserID:      req.UserID,
		Customer: domain.CustomerInfo{
			Name:            req.Name,
			Email:           req.Email,
			Phone:           req.Phone,
			Notes:           req.Notes,
			ShippingAddress: *addr,
		},
		Items:         domain.SnapshotItems(lines),
		Subtotal:      quote.Subtotal,
		Tax:           quote.Tax,
		DiscountCode:  quote.DiscountCode,
		DiscountValue: quote.DiscountValue,
		Shipping:      domain.ShippingCharge{Type: quote.ShippingTier, Cost: quote.ShippingCharge},
		Total:         quote.GrandTotal,
		Payment:       domain.PaymentInfo{GatewayOrderID: gatewayOrder.ID},
	}

	o.mu.Lock()
	o.attempts[orderNumber] = a
	pending := len(o.attempts)
	o.mu.Unlock()
	metrics.SetPendingAttempts(pending)

	log.Info("checkout started",
		zap.String("order_number", orderNumber),
		zap.String("gateway_order_id", gatewayOrder.ID),
		zap.Float64("total", quote.GrandTotal))

	out := *a
	return &out, nil
}

func (o *Orchestrator) validate(ctx context.Context, req BeginRequest) (*domain.ShippingAddress, []domain.CartLine, error) {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return nil, nil, &ValidationError{Field: "name", Reason: "Please enter your name."}
	case strings.TrimSpace(req.Email) == "":
		return nil, nil, &ValidationError{Field: "email", Reason: "Please enter your email."}
	case strings.TrimSpace(req.Phone) == "":
		return nil, nil, &ValidationError{Field: "phone", Reason: "Please enter your phone number."}
	case req.AddressID == "":
		return nil, nil, &ValidationError{Field: "address", Reason: "Please add a shipping address."}
	case !req.AcceptedTerms:
		return nil, nil, &ValidationError{Field: "terms", Reason: "Please accept the terms and conditions."}
	}

	addr, err := o.store.GetAddress(ctx, req.UserID, req.AddressID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, &ValidationError{Field: "address", Reason: "Please add a shipping address."}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load shipping address: %w", err)
	}

	m, err := o.carts.Get(ctx, req.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load cart: %w", err)
	}
	lines := m.Cart()
	if len(lines) == 0 {
		return nil, nil, &ValidationError{Field: "cart", Reason: "Your cart is empty."}
	}
	return addr, lines, nil
}

// Complete resolves a pending attempt with the gateway's answer. Every
// payment result ends in a written order: success as processing, anything
// else as failed. The caller's cancellation does not stop the writes.
func (o *Orchestrator) Complete(ctx context.Context, userID, orderNumber string, result PaymentResult) (*Outcome, error) {
	a, err := o.claim(userID, orderNumber)
	if err != nil {
		return nil, err
	}
	defer o.release(userID)

	ctx = context.WithoutCancel(ctx)

	if result.Error != nil {
		return o.fail(ctx, a, *result.Error)
	}
	if result.GatewayOrderID != a.GatewayOrder.ID ||
		!VerifySignature(o.cfg.KeySecret, result.GatewayOrderID, result.PaymentID, result.Signature) {
		return o.fail(ctx, a, domain.PaymentFailure{
			Code:        FailureSignatureMismatch,
			Description: "Payment signature could not be verified.",
		})
	}
	return o.succeed(ctx, a, result)
}

// Run drives a whole checkout against an in-process gateway.
func (o *Orchestrator) Run(ctx context.Context, req BeginRequest, gateway Gateway) (*Outcome, error) {
	attempt, err := o.Begin(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := gateway.Collect(ctx, attempt)
	if err != nil {
		result = PaymentResult{Error: &domain.PaymentFailure{Code: FailureGateway, Description: err.Error()}}
	}
	return o.Complete(ctx, req.UserID, attempt.OrderNumber, result)
}

// Pending returns a copy of the user's open attempt, if any.
func (o *Orchestrator) Pending(userID string) (*Attempt, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, a := range o.attempts {
		if a.UserID == userID {
			out := *a
			return &out, true
		}
	}
	return nil, false
}

func (o *Orchestrator) succeed(ctx context.Context, a *Attempt, result PaymentResult) (*Outcome, error) {
	log := logger.FromContextOr(ctx, o.log).With(zap.String("user_id", a.UserID), zap.String("order_number", a.OrderNumber))
	if err := a.transition(StatusPaymentSucceeded); err != nil {
		return nil, err
	}

	order := a.draft
	order.Status = domain.OrderStatusProcessing
	order.Payment = domain.PaymentInfo{
		PaymentID:      result.PaymentID,
		GatewayOrderID: result.GatewayOrderID,
		Signature:      result.Signature,
		Status:         domain.PaymentStatusSuccess,
	}
	order.CreatedAt = o.now()

	book := &BookkeepingError{OrderNumber: a.OrderNumber}
	outcome := &Outcome{Order: &order}

	if err := o.store.CreateSuccessOrder(ctx, &order); err != nil {
		// Without the record the cart is the only trace of what was bought.
		log.Error("payment succeeded but order could not be saved", zap.Error(err))
		book.add(StepOrderRecord, err)
		outcome.Status = a.Status
		outcome.Bookkeeping = book
		metrics.RecordCheckout(metrics.OutcomeBookkeepingFailed)
		return outcome, nil
	}
	if err := a.transition(StatusPersisted); err != nil {
		return nil, err
	}
	outcome.Status = a.Status

	if err := o.store.TouchAddress(ctx, a.UserID, a.addressID, o.now()); err != nil {
		log.Warn("touch address failed", zap.Error(err))
		book.add(StepTouchAddress, err)
	}

	path, err := o.functions.GenerateInvoice(ctx, &order)
	switch {
	case err != nil:
		log.Warn("invoice generation failed", zap.Error(err))
		book.add(StepInvoice, err)
	case path != "":
		if err := o.store.SetInvoiceURL(ctx, order.OrderNumber, path); err != nil {
			log.Warn("saving invoice url failed", zap.Error(err))
			book.add(StepInvoiceURL, err)
		} else {
			order.InvoiceURL = path
		}
	}

	if err := o.functions.SendOrderConfirmation(ctx, &order); err != nil {
		log.Warn("order confirmation failed", zap.Error(err))
		book.add(StepConfirmation, err)
	}

	if m, err := o.carts.Get(ctx, a.UserID); err != nil {
		log.Warn("clearing cart failed", zap.Error(err))
		book.add(StepClearCart, err)
	} else {
		m.ClearCart()
	}
	o.dropSelection(a.UserID)

	o.publish(ctx, log, "order placed", func() error { return o.publisher.OrderPlaced(ctx, &order) })

	if len(book.Steps) > 0 {
		outcome.Bookkeeping = book
		metrics.RecordCheckout(metrics.OutcomeBookkeepingFailed)
		log.Error("order bookkeeping incomplete", zap.Strings("steps", book.Steps))
	} else {
		metrics.RecordCheckout(metrics.OutcomeSuccess)
		log.Info("order placed")
	}
	return outcome, nil
}

func (o *Orchestrator) fail(ctx context.Context, a *Attempt, failure domain.PaymentFailure) (*Outcome, error) {
	log := logger.FromContextOr(ctx, o.log).With(zap.String("user_id", a.UserID), zap.String("order_number", a.OrderNumber))
	if err := a.transition(StatusPaymentFailed); err != nil {
		return nil, err
	}

	order := a.draft
	order.Status = domain.OrderStatusFailed
	order.Payment = domain.PaymentInfo{
		GatewayOrderID: a.GatewayOrder.ID,
		Status:         domain.PaymentStatusFailed,
		Error:          &failure,
	}
	order.CreatedAt = o.now()

	outcome := &Outcome{Order: &order, Status: a.Status}
	if err := o.store.CreateFailedOrder(ctx, &order); err != nil {
		log.Error("failed order could not be saved", zap.Error(err))
	} else if err := a.transition(StatusPersisted); err == nil {
		outcome.Status = a.Status
	}

	o.publish(ctx, log, "order failed", func() error { return o.publisher.OrderFailed(ctx, &order) })

	if failure.Code == FailureAbandoned {
		metrics.RecordCheckout(metrics.OutcomeAbandoned)
	} else {
		metrics.RecordCheckout(metrics.OutcomePaymentFailed)
	}
	log.Info("payment failed", zap.String("code", failure.Code), zap.String("description", failure.Description))

	return outcome, &PaymentError{
		OrderNumber: a.OrderNumber,
		Code:        failure.Code,
		Description: failure.Description,
	}
}

func (o *Orchestrator) publish(ctx context.Context, log *zap.Logger, what string, send func() error) {
	if o.publisher == nil {
		return
	}
	if err := send(); err != nil {
		log.Warn("publishing "+what+" event failed", zap.Error(err))
	}
}

// InProgress reports whether the user has a checkout between the start of
// Begin and the end of Complete. The cart must not change meanwhile.
func (o *Orchestrator) InProgress(userID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, busy := o.inFlight[userID]
	return busy
}

func (o *Orchestrator) acquire(userID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[userID]; busy {
		return false
	}
	o.inFlight[userID] = struct{}{}
	return true
}

func (o *Orchestrator) release(userID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, userID)
}

// claim removes the attempt so only one caller can resolve it.
func (o *Orchestrator) claim(userID, orderNumber string) (*Attempt, error) {
	o.mu.Lock()
	a, ok := o.attempts[orderNumber]
	if !ok || a.UserID != userID {
		o.mu.Unlock()
		return nil, ErrAttemptNotFound
	}
	delete(o.attempts, orderNumber)
	pending := len(o.attempts)
	o.mu.Unlock()

	metrics.SetPendingAttempts(pending)
	return a, nil
}
