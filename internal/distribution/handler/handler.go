package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"cardgate/internal/distribution/models"
	"cardgate/pkg/domain"
	dErrors "cardgate/pkg/domain-errors"
	"cardgate/pkg/platform/httputil"
	auth "cardgate/pkg/platform/middleware/auth"
	"cardgate/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, issuer domain.Principal, programID domain.ProgramID, recipientID domain.UserID, ttl time.Duration) (*models.Distribution, error)
	Redistribute(ctx context.Context, issuer domain.Principal, id domain.DistributionID, ttl time.Duration) (*models.Distribution, error)
	ListForIssuer(ctx context.Context, issuer domain.UserID) ([]models.Entry, error)
	ListForRecipient(ctx context.Context, recipient domain.UserID) ([]models.Entry, error)
}

type Handler struct {
	svc           Service
	authenticator auth.Authenticator
	logger        *slog.Logger
	baseURL       string
}

// New builds the ledger handler. baseURL prefixes the delivery links returned
// to issuers.
func New(svc Service, authenticator auth.Authenticator, logger *slog.Logger, baseURL string) *Handler {
	return &Handler{
		svc:           svc,
		authenticator: authenticator,
		logger:        logger,
		baseURL:       strings.TrimRight(baseURL, "/"),
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.authenticator, h.logger))
		r.Get("/api/me/distributions", h.handleListMine)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(domain.RoleIssuer, h.logger))
			r.Post("/api/distributions", h.handleCreate)
			r.Get("/api/distributions", h.handleListIssued)
			r.Post("/api/distributions/{id}/redistribute", h.handleRedistribute)
		})
	})
}

// createdResponse is the only place a token leaves the ledger towards the issuer.
type createdResponse struct {
	ID          string       `json:"id"`
	ProgramID   string       `json:"program_id"`
	RecipientID string       `json:"recipient_id"`
	Token       string       `json:"token"`
	Link        string       `json:"link"`
	State       models.State `json:"state"`
	ExpiresAt   time.Time    `json:"expires_at"`
	CreatedAt   time.Time    `json:"created_at"`
}

func (h *Handler) toCreated(d *models.Distribution) createdResponse {
	return createdResponse{
		ID:          d.ID.String(),
		ProgramID:   d.ProgramID.String(),
		RecipientID: d.RecipientID.String(),
		Token:       d.Token,
		Link:        h.baseURL + "/api/program_data/" + url.PathEscape(d.Token),
		State:       d.State(d.CreatedAt),
		ExpiresAt:   d.ExpiresAt,
		CreatedAt:   d.CreatedAt,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := requestcontext.Principal(ctx)

	var req models.CreateDistributionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	programID, recipientID, ttl, err := req.Parse()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.svc.Create(ctx, principal, programID, recipientID, ttl)
	if err != nil {
		h.logFailure(ctx, "create distribution failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, h.toCreated(d))
}

func (h *Handler) handleRedistribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, _ := requestcontext.Principal(ctx)

	id, err := domain.ParseDistributionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	// The body is optional; an empty one keeps the default ttl.
	var req models.RedistributeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteError(w, err)
		return
	}
	ttl, err := req.TTL()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.svc.Redistribute(ctx, principal, id, ttl)
	if err != nil {
		h.logFailure(ctx, "redistribute failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, h.toCreated(d))
}

func (h *Handler) handleListIssued(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := h.svc.ListForIssuer(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.logFailure(ctx, "list issued distributions failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"distributions": entries})
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := h.svc.ListForRecipient(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.logFailure(ctx, "list received distributions failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"distributions": entries})
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
}
