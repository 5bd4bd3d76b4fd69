package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type AddressHandler struct {
	addresses repository.AddressRepository
	timeout   time.Duration
	now       func() time.Time
}

func NewAddressHandler(addresses repository.AddressRepository, timeout time.Duration) *AddressHandler {
	return &AddressHandler{addresses: addresses, timeout: timeout, now: time.Now}
}

type AddressRequestDTO struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (d AddressRequestDTO) apply(a *domain.ShippingAddress) {
	a.Name = strings.TrimSpace(d.Name)
	a.Email = strings.TrimSpace(d.Email)
	a.Address = strings.TrimSpace(d.Address)
	a.City = strings.TrimSpace(d.City)
	a.State = strings.TrimSpace(d.State)
	a.PostalCode = strings.TrimSpace(d.PostalCode)
	a.Country = strings.TrimSpace(d.Country)
}

// GET /api/v1/addresses
// Most recently used or edited first; the first entry is the default.
func (h *AddressHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	list, err := h.addresses.ListAddresses(ctx, userID)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	if list == nil {
		list = []domain.ShippingAddress{}
	}
	respondJSON(w, http.StatusOK, list)
}

// POST /api/v1/addresses
func (h *AddressHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	var req AddressRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	now := h.now().UTC()
	a := &domain.ShippingAddress{ID: uuid.NewString(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	req.apply(a)
	if !a.Complete() {
		respondError(w, http.StatusBadRequest, "incomplete_address", "address, city, state, postal code and country are required")
		return
	}

	if err := h.addresses.CreateAddress(ctx, a); err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

// PUT /api/v1/addresses/{id}
func (h *AddressHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	var req AddressRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.addresses.GetAddress(ctx, userID, chi.URLParam(r, "id"))
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	req.apply(a)
	if !a.Complete() {
		respondError(w, http.StatusBadRequest, "incomplete_address", "address, city, state, postal code and country are required")
		return
	}
	a.UpdatedAt = h.now().UTC()

	if err := h.addresses.UpdateAddress(ctx, a); err != nil {
		handleError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// POST /api/v1/addresses/{id}/select
// Marks the address as the one to use by bumping it to the top of the list.
func (h *AddressHandler) Select(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	if err := h.addresses.TouchAddress(ctx, userID, chi.URLParam(r, "id"), h.now().UTC()); err != nil {
		handleError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/v1/addresses/{id}
func (h *AddressHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	if err := h.addresses.DeleteAddress(ctx, userID, chi.URLParam(r, "id")); err != nil {
		handleError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
