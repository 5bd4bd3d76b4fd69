package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/invoice"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/repository"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// requireUser writes 401 and returns "" when the request is anonymous.
func requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
	}
	return userID
}

// handleError maps service errors to HTTP responses. Anything unrecognised
// is logged and reported as a 500 without internals.
func handleError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		verr *checkout.ValidationError
		aerr *checkout.AllocationError
		perr *checkout.PaymentError
	)
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: verr.Reason, Code: "validation_failed", Details: verr.Field})
	case errors.As(err, &aerr):
		respondError(w, http.StatusServiceUnavailable, "order_number_unavailable", "Could not place the order right now. Please try again.")
	case errors.As(err, &perr):
		respondJSON(w, http.StatusPaymentRequired, ErrorResponse{Error: perr.Description, Code: "payment_failed", Details: perr.Code})
	case errors.Is(err, checkout.ErrCheckoutInProgress):
		respondError(w, http.StatusConflict, "checkout_in_progress", err.Error())
	case errors.Is(err, checkout.ErrAttemptNotFound):
		respondError(w, http.StatusNotFound, "attempt_not_found", err.Error())
	case errors.Is(err, checkout.ErrOrderNotFailed):
		respondError(w, http.StatusConflict, "order_not_failed", err.Error())
	case errors.Is(err, invoice.ErrNoInvoice):
		respondError(w, http.StatusNotFound, "invoice_not_ready", err.Error())
	case errors.Is(err, repository.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, repository.ErrAlreadyExists):
		respondError(w, http.StatusConflict, "already_exists", "resource already exists")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		logger.FromContext(ctx).Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
