package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/storefront/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Credentials describe a SQL database connection.
type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// CounterRepository exposes the order counter as a compare-and-swap cell.
// ReadOrderCounter returns ErrNotFound when the counter record is missing.
type CounterRepository interface {
	ReadOrderCounter(ctx context.Context) (int64, error)
	SwapOrderCounter(ctx context.Context, old, next int64) (bool, error)
}

type ProductRepository interface {
	ListProducts(ctx context.Context, ribbon string) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// CatalogWriter seeds products, shipping rates and the order counter.
type CatalogWriter interface {
	InsertProduct(ctx context.Context, p *domain.Product) error
	SetShippingRate(ctx context.Context, tier domain.ShippingTier, price float64) error
	EnsureOrderCounter(ctx context.Context, base int64) error
}

type DiscountRepository interface {
	FindDiscountByCode(ctx context.Context, code string) (*domain.DiscountCode, error)
	CreateDiscount(ctx context.Context, d *domain.DiscountCode) error
	ListDiscounts(ctx context.Context) ([]domain.DiscountCode, error)
	SetDiscountStatus(ctx context.Context, id string, status domain.DiscountStatus) error
}

// ShippingRepository returns ErrNotFound for a tier with no configured rate.
type ShippingRepository interface {
	GetShippingRate(ctx context.Context, tier domain.ShippingTier) (float64, error)
}

type AddressRepository interface {
	ListAddresses(ctx context.Context, userID string) ([]domain.ShippingAddress, error)
	GetAddress(ctx context.Context, userID, id string) (*domain.ShippingAddress, error)
	CreateAddress(ctx context.Context, a *domain.ShippingAddress) error
	UpdateAddress(ctx context.Context, a *domain.ShippingAddress) error
	DeleteAddress(ctx context.Context, userID, id string) error
	TouchAddress(ctx context.Context, userID, id string, at time.Time) error
}

type OrderRepository interface {
	CreateSuccessOrder(ctx context.Context, o *domain.Order) error
	CreateFailedOrder(ctx context.Context, o *domain.Order) error
	SetInvoiceURL(ctx context.Context, orderNumber, url string) error
	ListOrders(ctx context.Context, userID string, status domain.OrderStatus) ([]domain.Order, error)
	GetOrder(ctx context.Context, userID, orderNumber string) (*domain.Order, error)
}

type ContactRepository interface {
	CreateContactQuery(ctx context.Context, q *domain.ContactQuery) error
}

// Store is everything the service reads and writes in the document store.
type Store interface {
	CounterRepository
	ProductRepository
	CatalogWriter
	DiscountRepository
	ShippingRepository
	AddressRepository
	OrderRepository
	ContactRepository
	Close(ctx context.Context) error
}
