package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	identitymodels "fintech-id/internal/identity/models"
	"fintech-id/internal/otp/models"
	"fintech-id/internal/transport/http/shared"
	dErrors "fintech-id/pkg/domain-errors"
	"fintech-id/pkg/requestcontext"
)

type Service interface {
	Issue(ctx context.Context, req identitymodels.PhoneRequest) (string, error)
	Verify(ctx context.Context, req models.VerifyRequest) (string, error)
}

// Handler serves OTP creation and verification. Both routes expect the
// caller to be authenticated already.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Register mounts the routes under /auth/users/otp.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/users/otp/creation", h.handleCreate)
	r.Post("/auth/users/otp/verification", h.handleVerify)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req identitymodels.PhoneRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	phone, err := h.service.Issue(ctx, req)
	if err != nil {
		h.logFailure(ctx, "otp creation failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, identitymodels.PhoneResponse{MobilePhone: phone})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.VerifyRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	phone, err := h.service.Verify(ctx, req)
	if err != nil {
		h.logFailure(ctx, "otp verification failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, identitymodels.PhoneResponse{MobilePhone: phone})
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	if de, ok := dErrors.From(err); ok && shared.StatusFor(de.Code) < http.StatusInternalServerError {
		return
	}
	h.logger.ErrorContext(ctx, msg,
		"error", err,
		"client_id", requestcontext.ClientID(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
}
