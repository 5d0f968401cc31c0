package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fintech-id/internal/identity/models"
	"fintech-id/internal/transport/http/shared"
	dErrors "fintech-id/pkg/domain-errors"
	"fintech-id/pkg/requestcontext"
)

// Service is the identity use-case surface the handler calls.
type Service interface {
	Register(ctx context.Context, req *models.RegistrationRequest) (uuid.UUID, error)
	Authorize(ctx context.Context, req models.AuthorizationRequest) (models.AuthorizationResult, error)
	CheckRegistration(ctx context.Context, req models.PhoneRequest) (string, error)
}

// Handler serves the public registration and login endpoints.
type Handler struct {
	service      Service
	logger       *slog.Logger
	cookieName   string
	cookieMaxAge time.Duration
	secureCookie bool
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithSecureCookie marks the access cookie Secure. Enable behind TLS.
func WithSecureCookie(secure bool) Option {
	return func(h *Handler) {
		h.secureCookie = secure
	}
}

// New builds the handler. The access cookie is named cookieName and lives as
// long as the access token.
func New(service Service, cookieName string, accessTTL time.Duration, opts ...Option) *Handler {
	h := &Handler{
		service:      service,
		logger:       slog.Default(),
		cookieName:   cookieName,
		cookieMaxAge: accessTTL,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the routes under /public/users.
func (h *Handler) Register(r chi.Router) {
	r.Post("/public/users/registration", h.handleRegistration)
	r.Post("/public/users/check-registration", h.handleCheckRegistration)
	r.Post("/public/users/authorization", h.handleAuthorization)
}

func (h *Handler) handleRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.RegistrationRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		h.reject(ctx, "invalid registration request", err)
		shared.WriteError(w, err)
		return
	}

	id, err := h.service.Register(ctx, &req)
	if err != nil {
		h.reject(ctx, "registration rejected", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, models.RegistrationResponse{ID: id.String()})
}

func (h *Handler) handleCheckRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.PhoneRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	phone, err := h.service.CheckRegistration(ctx, req)
	if err != nil {
		h.reject(ctx, "check registration rejected", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, models.PhoneResponse{MobilePhone: phone})
}

func (h *Handler) handleAuthorization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.AuthorizationRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.service.Authorize(ctx, req)
	if err != nil {
		h.reject(ctx, "authorization rejected", err)
		shared.WriteError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    result.AccessToken,
		Path:     "/",
		MaxAge:   int(h.cookieMaxAge / time.Second),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	shared.WriteJSON(w, http.StatusOK, models.AuthorizationResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ClientID:     result.ClientID.String(),
	})
}

// reject logs client errors at debug and everything else at error.
func (h *Handler) reject(ctx context.Context, msg string, err error) {
	de, ok := dErrors.From(err)
	if ok && shared.StatusFor(de.Code) < http.StatusInternalServerError {
		h.logger.DebugContext(ctx, msg,
			"code", string(de.Code),
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	h.logger.ErrorContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
