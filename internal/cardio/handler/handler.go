package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cardgate/internal/cardio"
	dErrors "cardgate/pkg/domain-errors"
	"cardgate/pkg/platform/httputil"
	auth "cardgate/pkg/platform/middleware/auth"
	"cardgate/pkg/requestcontext"
)

type Service interface {
	ListReaders(ctx context.Context) ([]string, error)
	Scan(ctx context.Context) ([]cardio.Card, error)
	Read(ctx context.Context, uid string) (*cardio.Card, error)
}

type Handler struct {
	svc           Service
	authenticator auth.Authenticator
	logger        *slog.Logger
}

func New(svc Service, authenticator auth.Authenticator, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, authenticator: authenticator, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.authenticator, h.logger))
		r.Get("/api/readers", h.handleListReaders)
		r.Get("/api/scan_card", h.handleScan)
		r.Get("/api/cards/{uid}", h.handleRead)
	})
}

type readersResponse struct {
	Readers []string `json:"readers"`
}

type scanResponse struct {
	Success bool          `json:"success"`
	Cards   []cardio.Card `json:"cards"`
}

func (h *Handler) handleListReaders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	readers, err := h.svc.ListReaders(ctx)
	if err != nil {
		h.logFailure(ctx, "list readers failed", err)
		httputil.WriteError(w, err)
		return
	}
	if readers == nil {
		readers = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, readersResponse{Readers: readers})
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cards, err := h.svc.Scan(ctx)
	if err != nil {
		h.logFailure(ctx, "card scan failed", err)
		httputil.WriteError(w, err)
		return
	}
	if cards == nil {
		cards = []cardio.Card{}
	}
	httputil.WriteJSON(w, http.StatusOK, scanResponse{Success: true, Cards: cards})
}

type readResponse struct {
	Success bool         `json:"success"`
	Card    *cardio.Card `json:"card"`
}

func (h *Handler) handleRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	card, err := h.svc.Read(ctx, chi.URLParam(r, "uid"))
	if err != nil {
		h.logFailure(ctx, "card read failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, readResponse{Success: true, Card: card})
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
}
