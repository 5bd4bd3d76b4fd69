package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/go-chi/chi/v5"
)

type OrderRestorer interface {
	RestoreFailedOrder(ctx context.Context, userID, orderNumber string) (int, error)
}

type InvoiceLinker interface {
	URL(ctx context.Context, path string) (string, error)
}

type OrdersHandler struct {
	orders   repository.OrderRepository
	restorer OrderRestorer
	invoices InvoiceLinker
	timeout  time.Duration
}

func NewOrdersHandler(orders repository.OrderRepository, restorer OrderRestorer, invoices InvoiceLinker, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		orders:   orders,
		restorer: restorer,
		invoices: invoices,
		timeout:  timeout,
	}
}

type RestoreResponseDTO struct {
	Restored int `json:"restored"`
}

type InvoiceResponseDTO struct {
	URL string `json:"url"`
}

// GET /api/v1/orders?status=processing|failed
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := requireUser(w, r)
	if userID == "" {
		return
	}

	status := domain.OrderStatus(r.URL.Query().Get("status"))
	switch status {
	case "":
		status = domain.OrderStatusProcessing
	case domain.OrderStatusProcessing, domain.OrderStatusFailed:
	default:
		respondError(w, http.StatusBadRequest, "invalid_status", "status must be processing or failed")
		return
	}

	orders, err := h.orders.ListOrders(ctx, userID, status)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

// GET /api/v1/orders/{order_number}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	order, err := h.orders.GetOrder(ctx, userID, orderNumberParam(r))
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// POST /api/v1/orders/{order_number}/restore
func (h *OrdersHandler) Restore(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	n, err := h.restorer.RestoreFailedOrder(ctx, userID, orderNumberParam(r))
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, RestoreResponseDTO{Restored: n})
}

// GET /api/v1/orders/{order_number}/invoice
func (h *OrdersHandler) Invoice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	order, err := h.orders.GetOrder(ctx, userID, orderNumberParam(r))
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	url, err := h.invoices.URL(ctx, order.InvoiceURL)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, InvoiceResponseDTO{URL: url})
}

// orderNumberParam accepts order numbers with or without the leading '#',
// which clients cannot put in a path unescaped.
func orderNumberParam(r *http.Request) string {
	n := chi.URLParam(r, "order_number")
	if !strings.HasPrefix(n, "#") {
		n = "#" + n
	}
	return n
}
