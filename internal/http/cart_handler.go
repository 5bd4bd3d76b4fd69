package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

type Carts interface {
	Get(ctx context.Context, userID string) (*cart.Manager, error)
}

// CheckoutLock tells whether a user's cart is part of a running checkout.
type CheckoutLock interface {
	InProgress(userID string) bool
}

type CartHandler struct {
	carts    Carts
	products repository.ProductRepository
	lock     CheckoutLock
	timeout  time.Duration
	upgrader websocket.Upgrader
}

// NewCartHandler builds the cart endpoints. Cart changes are refused while
// lock reports a checkout in progress; lock may be nil.
func NewCartHandler(carts Carts, products repository.ProductRepository, lock CheckoutLock, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:    carts,
		products: products,
		lock:     lock,
		timeout:  timeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type WishlistToggleDTO struct {
	InWishlist bool          `json:"in_wishlist"`
	Message    string        `json:"message"`
	Snapshot   cart.Snapshot `json:"snapshot"`
}

func (h *CartHandler) manager(w http.ResponseWriter, r *http.Request) (*cart.Manager, bool) {
	userID := requireUser(w, r)
	if userID == "" {
		return nil, false
	}
	m, err := h.carts.Get(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("cart unavailable", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "cart_unavailable", "cart could not be loaded")
		return nil, false
	}
	return m, true
}

// mutableManager is manager for requests that change cart lines.
func (h *CartHandler) mutableManager(w http.ResponseWriter, r *http.Request) (*cart.Manager, bool) {
	m, ok := h.manager(w, r)
	if !ok {
		return nil, false
	}
	if h.lock != nil && h.lock.InProgress(getUserIDFromContext(r.Context())) {
		respondError(w, http.StatusConflict, "checkout_in_progress", "cart cannot change while a checkout is in progress")
		return nil, false
	}
	return m, true
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, m.Snapshot())
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	m, ok := h.mutableManager(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	p, err := h.products.GetProduct(ctx, req.ProductID)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	m.AddToCart(*p)
	respondJSON(w, http.StatusCreated, m.Snapshot())
}

// PUT /api/v1/cart/items/{product_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	m, ok := h.mutableManager(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	m.UpdateQty(chi.URLParam(r, "product_id"), req.Quantity)
	respondJSON(w, http.StatusOK, m.Snapshot())
}

// DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	m, ok := h.mutableManager(w, r)
	if !ok {
		return
	}
	m.RemoveFromCart(chi.URLParam(r, "product_id"))
	respondJSON(w, http.StatusOK, m.Snapshot())
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	m, ok := h.mutableManager(w, r)
	if !ok {
		return
	}
	m.ClearCart()
	respondJSON(w, http.StatusOK, m.Snapshot())
}

// GET /api/v1/wishlist
func (h *CartHandler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, m.Wishlist())
}

// POST /api/v1/wishlist/{product_id}
func (h *CartHandler) ToggleWishlist(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	m, ok := h.manager(w, r)
	if !ok {
		return
	}

	p, err := h.products.GetProduct(ctx, chi.URLParam(r, "product_id"))
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	var msg string
	in := m.ToggleWishlist(*p, func(s string) { msg = s })
	respondJSON(w, http.StatusOK, WishlistToggleDTO{InWishlist: in, Message: msg, Snapshot: m.Snapshot()})
}

// GET /api/v1/cart/stream
// Upgrades to a websocket and pushes the cart and wishlist on every change.
func (h *CartHandler) Stream(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	log := logger.FromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := m.Subscribe()
	defer cancel()

	// the client only sends control frames; reading keeps pongs flowing and
	// notices when it goes away
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case snap, open := <-updates:
			if !open {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(snap); err != nil {
				log.Debug("cart stream write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
