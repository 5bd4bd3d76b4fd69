package http

import (
	"net/http"

	"github.com/fjod/storefront/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type Handlers struct {
	Cart     *CartHandler
	Checkout *CheckoutHandler
	Orders   *OrdersHandler
	Address  *AddressHandler
	Product  *ProductHandler
	Discount *DiscountHandler
	Contact  *ContactHandler
}

type RouterConfig struct {
	Log            *zap.Logger
	RateLimitRPS   float64
	RateLimitBurst int
	AdminIDs       []string
}

// NewRouter wires every route behind tracing, metrics, logging and rate
// limiting. Handlers set their own timeouts so the cart stream can stay
// open.
func NewRouter(h Handlers, cfg RouterConfig) http.Handler {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	limiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(AuthMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(metrics.InstrumentHandler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limiter.Handler)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.Product.List)
			r.Get("/{id}", h.Product.Get)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.Cart.GetCart)
			r.Delete("/", h.Cart.ClearCart)
			r.Get("/stream", h.Cart.Stream)
			r.Post("/items", h.Cart.AddItem)
			r.Put("/items/{product_id}", h.Cart.UpdateQuantity)
			r.Delete("/items/{product_id}", h.Cart.RemoveItem)
		})

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", h.Cart.GetWishlist)
			r.Post("/{product_id}", h.Cart.ToggleWishlist)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", h.Checkout.Begin)
			r.Get("/pending", h.Checkout.Pending)
			r.Post("/complete", h.Checkout.Complete)
			r.Get("/quote", h.Checkout.Quote)
			r.Post("/discount", h.Checkout.ApplyDiscount)
			r.Delete("/discount", h.Checkout.ClearDiscount)
			r.Put("/shipping", h.Checkout.SelectShipping)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.Orders.ListOrders)
			r.Get("/{order_number}", h.Orders.GetOrder)
			r.Post("/{order_number}/restore", h.Orders.Restore)
			r.Get("/{order_number}/invoice", h.Orders.Invoice)
		})

		r.Route("/addresses", func(r chi.Router) {
			r.Get("/", h.Address.List)
			r.Post("/", h.Address.Create)
			r.Put("/{id}", h.Address.Update)
			r.Delete("/{id}", h.Address.Delete)
			r.Post("/{id}/select", h.Address.Select)
		})

		r.Post("/contact", h.Contact.Submit)

		r.Route("/admin/discounts", func(r chi.Router) {
			r.Use(RequireAdmin(cfg.AdminIDs))
			r.Get("/", h.Discount.List)
			r.Post("/", h.Discount.Create)
			r.Put("/{id}/status", h.Discount.SetStatus)
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
