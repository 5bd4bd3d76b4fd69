package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// DiscountHandler is the admin surface for promo codes.
type DiscountHandler struct {
	discounts repository.DiscountRepository
	timeout   time.Duration
	now       func() time.Time
}

func NewDiscountHandler(discounts repository.DiscountRepository, timeout time.Duration) *DiscountHandler {
	return &DiscountHandler{discounts: discounts, timeout: timeout, now: time.Now}
}

type CreateDiscountRequestDTO struct {
	Code  string              `json:"code"`
	Name  string              `json:"name"`
	Type  domain.DiscountType `json:"type"`
	Value float64             `json:"value"`
}

type DiscountStatusRequestDTO struct {
	Status domain.DiscountStatus `json:"status"`
}

// POST /api/v1/admin/discounts
// New codes start active.
func (h *DiscountHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateDiscountRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	d := &domain.DiscountCode{
		ID:        uuid.NewString(),
		Code:      pricing.NormalizeCode(req.Code),
		Name:      strings.TrimSpace(req.Name),
		Type:      req.Type,
		Value:     req.Value,
		Status:    domain.DiscountActive,
		CreatedAt: h.now().UTC(),
	}
	switch {
	case d.Code == "":
		respondError(w, http.StatusBadRequest, "invalid_code", "code is required")
		return
	case d.Type != domain.DiscountPercentage && d.Type != domain.DiscountFlat:
		respondError(w, http.StatusBadRequest, "invalid_type", "type must be percentage or flat")
		return
	case d.Value <= 0 || (d.Type == domain.DiscountPercentage && d.Value > 100):
		respondError(w, http.StatusBadRequest, "invalid_value", "value must be positive and a percentage at most 100")
		return
	}

	if err := h.discounts.CreateDiscount(ctx, d); err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

// GET /api/v1/admin/discounts
func (h *DiscountHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	codes, err := h.discounts.ListDiscounts(ctx)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	if codes == nil {
		codes = []domain.DiscountCode{}
	}
	respondJSON(w, http.StatusOK, codes)
}

// PUT /api/v1/admin/discounts/{id}/status
func (h *DiscountHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req DiscountStatusRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Status != domain.DiscountActive && req.Status != domain.DiscountInactive {
		respondError(w, http.StatusBadRequest, "invalid_status", "status must be Active or Inactive")
		return
	}

	if err := h.discounts.SetDiscountStatus(ctx, chi.URLParam(r, "id"), req.Status); err != nil {
		handleError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
