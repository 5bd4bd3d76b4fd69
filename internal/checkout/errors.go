package checkout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCheckoutInProgress = errors.New("checkout already in progress")
	ErrAttemptNotFound    = errors.New("checkout attempt not found")
	ErrIllegalTransition  = errors.New("illegal transition of checkout status")
)

// ValidationError is raised before any remote call is made. Reason is safe
// to show to the shopper.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AllocationError means no order number could be reserved.
type AllocationError struct {
	Err error
}

func (e *AllocationError) Error() string {
	return "order number allocation failed: " + e.Err.Error()
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// PaymentError is the recorded outcome of a rejected or cancelled payment.
type PaymentError struct {
	OrderNumber string
	Code        string
	Description string
}

func (e *PaymentError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("payment for %s failed: %s", e.OrderNumber, e.Code)
	}
	return fmt.Sprintf("payment for %s failed: %s: %s", e.OrderNumber, e.Code, e.Description)
}

// Bookkeeping steps that may fail after a successful payment.
const (
	StepOrderRecord  = "order_record"
	StepTouchAddress = "touch_address"
	StepInvoice      = "invoice"
	StepInvoiceURL   = "invoice_url"
	StepConfirmation = "confirmation_email"
	StepClearCart    = "clear_cart"
)

// BookkeepingError lists the post-payment steps that did not complete. The
// payment itself stands.
type BookkeepingError struct {
	OrderNumber string
	Steps       []string
	Errs        []error
}

func (e *BookkeepingError) add(step string, err error) {
	e.Steps = append(e.Steps, step)
	e.Errs = append(e.Errs, err)
}

func (e *BookkeepingError) Failed(step string) bool {
	for _, s := range e.Steps {
		if s == step {
			return true
		}
	}
	return false
}

func (e *BookkeepingError) Error() string {
	return fmt.Sprintf("payment succeeded but order %s bookkeeping failed: %s",
		e.OrderNumber, strings.Join(e.Steps, ", "))
}

func (e *BookkeepingError) Unwrap() []error {
	return e.Errs
}
