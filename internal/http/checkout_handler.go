package http

import (
	"net/http"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/pricing"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	orch *checkout.Orchestrator
}

func NewCheckoutHandler(orch *checkout.Orchestrator) *CheckoutHandler {
	return &CheckoutHandler{orch: orch}
}

type ApplyDiscountRequestDTO struct {
	Code string `json:"code"`
}

type SelectShippingRequestDTO struct {
	Tier domain.ShippingTier `json:"tier"`
}

type CompleteCheckoutRequestDTO struct {
	OrderNumber string `json:"order_number"`
	checkout.PaymentResult
}

type CheckoutOutcomeDTO struct {
	Order           *domain.Order   `json:"order"`
	Status          checkout.Status `json:"status"`
	IncompleteSteps []string        `json:"incomplete_steps,omitempty"`
}

// GET /api/v1/checkout/quote
func (h *CheckoutHandler) Quote(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	q, err := h.orch.Quote(r.Context(), userID)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondJSON(w, http.StatusOK, q.Rounded())
}

// POST /api/v1/checkout/discount
func (h *CheckoutHandler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	var req ApplyDiscountRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	q, err := h.orch.ApplyDiscount(r.Context(), userID, req.Code)
	h.respondQuote(w, r, q, err)
}

// DELETE /api/v1/checkout/discount
func (h *CheckoutHandler) ClearDiscount(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	h.orch.ClearDiscount(userID)
	q, err := h.orch.Quote(r.Context(), userID)
	h.respondQuote(w, r, q, err)
}

// PUT /api/v1/checkout/shipping
func (h *CheckoutHandler) SelectShipping(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	var req SelectShippingRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	q, err := h.orch.SelectShipping(r.Context(), userID, req.Tier)
	h.respondQuote(w, r, q, err)
}

func (h *CheckoutHandler) respondQuote(w http.ResponseWriter, r *http.Request, q pricing.Breakdown, err error) {
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondJSON(w, http.StatusOK, q.Rounded())
}

// POST /api/v1/checkout
// Starts a checkout and returns what the client needs to open the payment
// sheet.
func (h *CheckoutHandler) Begin(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	var req checkout.BeginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.UserID = userID

	attempt, err := h.orch.Begin(r.Context(), req)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	respondJSON(w, http.StatusCreated, attempt)
}

// GET /api/v1/checkout/pending
func (h *CheckoutHandler) Pending(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	attempt, ok := h.orch.Pending(userID)
	if !ok {
		respondError(w, http.StatusNotFound, "attempt_not_found", "no checkout in progress")
		return
	}
	respondJSON(w, http.StatusOK, attempt)
}

// POST /api/v1/checkout/complete
// Receives the payment sheet's result: either the signed payment or the
// gateway's error.
func (h *CheckoutHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	var req CompleteCheckoutRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OrderNumber == "" {
		respondError(w, http.StatusBadRequest, "missing_order_number", "order_number is required")
		return
	}

	out, err := h.orch.Complete(r.Context(), userID, req.OrderNumber, req.PaymentResult)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}

	dto := CheckoutOutcomeDTO{Order: out.Order, Status: out.Status}
	if out.Bookkeeping != nil {
		dto.IncompleteSteps = out.Bookkeeping.Steps
		logger.FromContext(r.Context()).Warn("order placed with incomplete bookkeeping",
			zap.String("order_number", req.OrderNumber),
			zap.Error(out.Bookkeeping))
	}
	respondJSON(w, http.StatusOK, dto)
}
