package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cardgate/internal/program/models"
	"cardgate/pkg/domain"
	dErrors "cardgate/pkg/domain-errors"
	"cardgate/pkg/platform/audit"
	"cardgate/pkg/platform/sentinel"
	"cardgate/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, p *models.Program) error
	FindByID(ctx context.Context, id domain.ProgramID) (*models.Program, error)
	ListByOwner(ctx context.Context, owner domain.UserID) ([]*models.Program, error)
	SetActive(ctx context.Context, id domain.ProgramID, active bool) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the program store's business layer: validation, ownership and
// the active flag.
type Service struct {
	store          Store
	validator      *PayloadValidator
	logger         *slog.Logger
	auditPublisher AuditPublisher
	now            func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store Store, validator *PayloadValidator, opts ...Option) *Service {
	s := &Service{
		store:     store,
		validator: validator,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new active program owned by the calling issuer.
func (s *Service) Create(ctx context.Context, owner domain.Principal, req *models.CreateProgramRequest) (*models.Program, error) {
	if !owner.Role.IsIssuer() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only issuers can create programs")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req.Payload); err != nil {
		return nil, err
	}

	p, err := models.NewProgram(domain.NewProgramID(), owner.ID, req.Name, req.Description, req.Payload, s.now())
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create program")
	}

	s.emit(ctx, audit.Event{UserID: owner.ID, Subject: p.ID.String(), Action: string(audit.EventProgramCreated)})
	return p, nil
}

func (s *Service) Get(ctx context.Context, id domain.ProgramID) (*models.Program, error) {
	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "program not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load program")
	}
	return p, nil
}

// GetOwned returns the program only when owner owns it.
func (s *Service) GetOwned(ctx context.Context, owner domain.UserID, id domain.ProgramID) (*models.Program, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.OwnedBy(owner) {
		return nil, dErrors.New(dErrors.CodeForbidden, "program belongs to another issuer")
	}
	return p, nil
}

// ListOwned returns owner's programs ordered by creation time.
func (s *Service) ListOwned(ctx context.Context, owner domain.UserID) ([]*models.Program, error) {
	programs, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list programs")
	}
	return programs, nil
}

// Deactivate stops new distributions of the program. Existing distributions
// remain deliverable. Deactivating an inactive program is a no-op.
func (s *Service) Deactivate(ctx context.Context, owner domain.UserID, id domain.ProgramID) (*models.Program, error) {
	p, err := s.GetOwned(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return p, nil
	}
	if err := s.store.SetActive(ctx, id, false); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "program not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate program")
	}
	p.Active = false

	s.emit(ctx, audit.Event{UserID: owner, Subject: id.String(), Action: string(audit.EventProgramDeactivated)})
	return p, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	requestID := requestcontext.RequestID(ctx)
	s.logger.InfoContext(ctx, event.Action,
		"event", event.Action,
		"log_type", "audit",
		"program_id", event.Subject,
		"request_id", requestID,
	)
	if s.auditPublisher == nil {
		return
	}
	event.RequestID = requestID
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "error", err, "action", event.Action)
	}
}
