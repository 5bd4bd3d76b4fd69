package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ContactNotifier interface {
	SendContactConfirmation(ctx context.Context, q *domain.ContactQuery) error
}

type ContactHandler struct {
	queries  repository.ContactRepository
	notifier ContactNotifier
	timeout  time.Duration
	now      func() time.Time
}

func NewContactHandler(queries repository.ContactRepository, notifier ContactNotifier, timeout time.Duration) *ContactHandler {
	return &ContactHandler{queries: queries, notifier: notifier, timeout: timeout, now: time.Now}
}

type ContactRequestDTO struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// POST /api/v1/contact
// The query is stored first; the confirmation mail is best-effort.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	var req ContactRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	q := &domain.ContactQuery{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Subject:   strings.TrimSpace(req.Subject),
		Message:   strings.TrimSpace(req.Message),
		CreatedAt: h.now().UTC(),
	}
	if q.Name == "" || q.Email == "" || q.Message == "" {
		respondError(w, http.StatusBadRequest, "incomplete_query", "name, email and message are required")
		return
	}

	if err := h.queries.CreateContactQuery(ctx, q); err != nil {
		handleError(ctx, w, err)
		return
	}
	if err := h.notifier.SendContactConfirmation(ctx, q); err != nil {
		logger.FromContext(ctx).Warn("contact confirmation failed", zap.String("query_id", q.ID), zap.Error(err))
	}
	respondJSON(w, http.StatusCreated, q)
}
