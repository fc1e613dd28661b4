package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cardgate/internal/program/models"
	"cardgate/pkg/domain"
	dErrors "cardgate/pkg/domain-errors"
	"cardgate/pkg/platform/httputil"
	auth "cardgate/pkg/platform/middleware/auth"
	"cardgate/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, owner domain.Principal, req *models.CreateProgramRequest) (*models.Program, error)
	GetOwned(ctx context.Context, owner domain.UserID, id domain.ProgramID) (*models.Program, error)
	ListOwned(ctx context.Context, owner domain.UserID) ([]*models.Program, error)
	Deactivate(ctx context.Context, owner domain.UserID, id domain.ProgramID) (*models.Program, error)
}

type Handler struct {
	svc           Service
	authenticator auth.Authenticator
	logger        *slog.Logger
}

func New(svc Service, authenticator auth.Authenticator, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, authenticator: authenticator, logger: logger}
}

// Register mounts the issuer-only program routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.authenticator, h.logger))
		r.Use(auth.RequireRole(domain.RoleIssuer, h.logger))
		r.Post("/api/programs", h.handleCreate)
		r.Get("/api/programs", h.handleList)
		r.Get("/api/programs/{id}", h.handleGet)
		r.Post("/api/programs/{id}/deactivate", h.handleDeactivate)
	})
}

type programResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toResponse(p *models.Program) programResponse {
	return programResponse{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Payload:     p.Payload,
		Active:      p.Active,
		CreatedAt:   p.CreatedAt,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := requestcontext.Principal(ctx)

	var req models.CreateProgramRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.svc.Create(ctx, principal, &req)
	if err != nil {
		h.logFailure(ctx, "create program failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(p))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programs, err := h.svc.ListOwned(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.logFailure(ctx, "list programs failed", err)
		httputil.WriteError(w, err)
		return
	}
	resp := make([]programResponse, 0, len(programs))
	for _, p := range programs {
		resp = append(resp, toResponse(p))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"programs": resp})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseProgramID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.svc.GetOwned(ctx, requestcontext.UserID(ctx), id)
	if err != nil {
		h.logFailure(ctx, "get program failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseProgramID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.svc.Deactivate(ctx, requestcontext.UserID(ctx), id)
	if err != nil {
		h.logFailure(ctx, "deactivate program failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
}
