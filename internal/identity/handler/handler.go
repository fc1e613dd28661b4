package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cardgate/internal/identity/models"
	"cardgate/pkg/domain"
	dErrors "cardgate/pkg/domain-errors"
	"cardgate/pkg/platform/httputil"
	auth "cardgate/pkg/platform/middleware/auth"
	"cardgate/pkg/requestcontext"
)

// Service defines the identity operations the HTTP layer needs.
type Service interface {
	Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	CreateRecipient(ctx context.Context, issuer domain.Principal, req *models.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req *models.LoginRequest) (*models.TokenResponse, error)
	Get(ctx context.Context, id domain.UserID) (*models.User, error)
	ListRecipients(ctx context.Context) ([]*models.User, error)
}

// Handler serves /auth and /api/users.
type Handler struct {
	svc           Service
	authenticator auth.Authenticator
	logger        *slog.Logger
	rateLimit     func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithRateLimit guards the unauthenticated credential endpoints.
func WithRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.rateLimit = mw
	}
}

func New(svc Service, authenticator auth.Authenticator, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		svc:           svc,
		authenticator: authenticator,
		logger:        logger,
		rateLimit:     func(next http.Handler) http.Handler { return next },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Post("/auth/register", h.handleRegister)
		r.Post("/auth/login", h.handleLogin)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.authenticator, h.logger))
		r.Get("/auth/me", h.handleMe)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(domain.RoleIssuer, h.logger))
			r.Post("/api/users", h.handleCreateUser)
			r.Get("/api/users", h.handleListUsers)
		})
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.RegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	user, err := h.svc.Register(ctx, &req)
	if err != nil {
		h.logFailure(ctx, "register failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, models.ToUserResponse(user))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	token, err := h.svc.Login(ctx, &req)
	if err != nil {
		h.logFailure(ctx, "login failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, token)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.svc.Get(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.logFailure(ctx, "load current user failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToUserResponse(user))
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := requestcontext.Principal(ctx)

	var req models.RegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	user, err := h.svc.CreateRecipient(ctx, principal, &req)
	if err != nil {
		h.logFailure(ctx, "create user failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, models.ToUserResponse(user))
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := h.svc.ListRecipients(ctx)
	if err != nil {
		h.logFailure(ctx, "list users failed", err)
		httputil.WriteError(w, err)
		return
	}
	resp := make([]models.UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, models.ToUserResponse(u))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"users": resp})
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
