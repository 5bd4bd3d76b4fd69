package checkout

import (
	"context"
	"time"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/functions"
)

// Store is the part of the document store checkout reads and writes.
type Store interface {
	GetAddress(ctx context.Context, userID, id string) (*domain.ShippingAddress, error)
	TouchAddress(ctx context.Context, userID, id string, at time.Time) error
	FindDiscountByCode(ctx context.Context, code string) (*domain.DiscountCode, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateSuccessOrder(ctx context.Context, o *domain.Order) error
	CreateFailedOrder(ctx context.Context, o *domain.Order) error
	SetInvoiceURL(ctx context.Context, orderNumber, url string) error
	GetOrder(ctx context.Context, userID, orderNumber string) (*domain.Order, error)
}

type Carts interface {
	Get(ctx context.Context, userID string) (*cart.Manager, error)
}

type Allocator interface {
	Next(ctx context.Context) (string, error)
}

type RateSource interface {
	Rates(ctx context.Context) domain.ShippingRates
}

type Functions interface {
	CreatePaymentOrder(ctx context.Context, req functions.PaymentOrderRequest) (*functions.PaymentOrder, error)
	GenerateInvoice(ctx context.Context, order *domain.Order) (string, error)
	SendOrderConfirmation(ctx context.Context, order *domain.Order) error
}

// Publisher announces resolved orders to downstream consumers.
type Publisher interface {
	OrderPlaced(ctx context.Context, order *domain.Order) error
	OrderFailed(ctx context.Context, order *domain.Order) error
}

// Gateway collects a payment for an attempt in process. Payment pages that
// run on the client post their result to Complete instead.
type Gateway interface {
	Collect(ctx context.Context, attempt *Attempt) (PaymentResult, error)
}
