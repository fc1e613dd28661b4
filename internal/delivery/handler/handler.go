package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cardgate/internal/delivery/models"
	dErrors "cardgate/pkg/domain-errors"
	"cardgate/pkg/platform/httputil"
	"cardgate/pkg/requestcontext"
)

type Service interface {
	Deliver(ctx context.Context, token string, hint models.ClientHint) (*models.Result, error)
}

// Handler serves the token-authenticated fetch endpoint. The token in the
// path is the only credential.
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
		r.Get("/api/program_data/{token}", h.handleDeliver)
	})
}

func (h *Handler) handleDeliver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userAgent := requestcontext.UserAgent(ctx)
	if userAgent == "" {
		userAgent = r.UserAgent()
	}
	hint := models.ClientHint{
		UserAgent:  userAgent,
		MobileHint: r.Header.Get("Sec-CH-UA-Mobile"),
		ForceWeb:   r.URL.Query().Get("view") == "web",
	}

	res, err := h.svc.Deliver(ctx, chi.URLParam(r, "token"), hint)
	if err != nil {
		h.logFailure(ctx, "deliver failed", err)
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Add("Vary", "User-Agent, Sec-CH-UA-Mobile")
	switch res.Kind {
	case models.KindRedirect:
		httputil.WriteJSON(w, http.StatusOK, res.Redirect)
	default:
		httputil.WriteJSON(w, http.StatusOK, res.Payload)
	}
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
}
