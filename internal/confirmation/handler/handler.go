package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	dErrors "cardgate/pkg/domain-errors"
	"cardgate/pkg/platform/httputil"
	"cardgate/pkg/requestcontext"
)

type Service interface {
	Confirm(ctx context.Context, token string) error
}

type Handler struct {
	svc       Service
	logger    *slog.Logger
	rateLimit func(http.Handler) http.Handler
}

type Option func(*Handler)

func WithRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.rateLimit = mw
	}
}

func New(svc Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		svc:       svc,
		logger:    logger,
		rateLimit: func(next http.Handler) http.Handler { return next },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Post("/api/program_data/{token}/confirm", h.handleConfirm)
	})
}

type confirmResponse struct {
	Success bool `json:"success"`
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.svc.Confirm(ctx, chi.URLParam(r, "token")); err != nil {
		level := slog.LevelWarn
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			level = slog.LevelError
		}
		h.logger.Log(ctx, level, "confirm failed", "error", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, confirmResponse{Success: true})
}
