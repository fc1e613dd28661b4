package service

import (
	"context"
	"log/slog"
	"time"

	"cardgate/internal/delivery/device"
	"cardgate/internal/delivery/models"
	distmetrics "cardgate/internal/distribution/metrics"
	distmodels "cardgate/internal/distribution/models"
	programmodels "cardgate/internal/program/models"
	"cardgate/pkg/domain"
	dErrors "cardgate/pkg/domain-errors"
	"cardgate/pkg/platform/audit"
	"cardgate/pkg/requestcontext"
)

// Ledger is the slice of the distribution ledger the gateway reads.
type Ledger interface {
	Lookup(ctx context.Context, token string) (*distmodels.Distribution, error)
	CheckDeliverable(d *distmodels.Distribution) error
	TouchFetched(ctx context.Context, d *distmodels.Distribution) error
	Now() time.Time
}

type Programs interface {
	Get(ctx context.Context, id domain.ProgramID) (*programmodels.Program, error)
}

type Directory interface {
	Usernames(ctx context.Context, ids []domain.UserID) (map[domain.UserID]string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the delivery gateway. It never consumes a distribution: fetching
// is repeatable until the client confirms.
type Service struct {
	ledger         Ledger
	programs       Programs
	directory      Directory
	links          LinkBuilder
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *distmetrics.Metrics
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

func WithMetrics(m *distmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(ledger Ledger, programs Programs, directory Directory, links LinkBuilder, opts ...Option) *Service {
	s := &Service{
		ledger:    ledger,
		programs:  programs,
		directory: directory,
		links:     links,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deliver resolves token into a redirect for mobile clients or the program
// payload for everyone else.
func (s *Service) Deliver(ctx context.Context, token string, hint models.ClientHint) (*models.Result, error) {
	d, err := s.ledger.Lookup(ctx, token)
	if err != nil {
		s.reject(ctx, nil, err)
		return nil, err
	}
	if err := s.ledger.CheckDeliverable(d); err != nil {
		s.reject(ctx, d, err)
		return nil, err
	}

	if !hint.ForceWeb && device.Classify(hint.UserAgent, hint.MobileHint) == device.ClassMobile {
		return s.redirect(ctx, d, hint)
	}
	return s.payload(ctx, d, hint)
}

func (s *Service) redirect(ctx context.Context, d *distmodels.Distribution, hint models.ClientHint) (*models.Result, error) {
	names, err := s.directory.Usernames(ctx, []domain.UserID{d.RecipientID})
	if err != nil {
		s.metrics.IncrementDelivery(distmetrics.OutcomeError)
		return nil, err
	}
	s.metrics.IncrementDelivery(distmetrics.OutcomeRedirect)
	s.emit(ctx, audit.Event{
		UserID:  d.RecipientID,
		Subject: d.ID.String(),
		Action:  string(audit.EventDeliveryRedirected),
		Reason:  device.DisplayName(hint.UserAgent),
	})
	return &models.Result{
		Kind:     models.KindRedirect,
		Redirect: s.links.Redirect(names[d.RecipientID], d.Token),
	}, nil
}

func (s *Service) payload(ctx context.Context, d *distmodels.Distribution, hint models.ClientHint) (*models.Result, error) {
	program, err := s.programs.Get(ctx, d.ProgramID)
	if err != nil {
		s.metrics.IncrementDelivery(distmetrics.OutcomeError)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load program")
	}
	if err := s.ledger.TouchFetched(ctx, d); err != nil {
		s.metrics.IncrementDelivery(distmetrics.OutcomeError)
		return nil, err
	}

	s.metrics.IncrementDelivery(distmetrics.OutcomePayload)
	s.emit(ctx, audit.Event{
		UserID:  d.RecipientID,
		Subject: d.ID.String(),
		Action:  string(audit.EventProgramDelivered),
		Reason:  device.DisplayName(hint.UserAgent),
	})
	return &models.Result{
		Kind: models.KindPayload,
		Payload: &models.Payload{
			ProgramName: program.Name,
			SectorData:  program.Payload,
			Timestamp:   s.ledger.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

func (s *Service) reject(ctx context.Context, d *distmodels.Distribution, err error) {
	code := dErrors.CodeOf(err)
	s.metrics.IncrementDelivery(distmetrics.OutcomeFor(code))
	if code == dErrors.CodeInternal {
		return
	}
	event := audit.Event{
		Action:   string(audit.EventDeliveryRejected),
		Decision: "denied",
		Reason:   string(code),
	}
	if d != nil {
		event.UserID = d.RecipientID
		event.Subject = d.ID.String()
	}
	s.emit(ctx, event)
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	requestID := requestcontext.RequestID(ctx)
	s.logger.InfoContext(ctx, event.Action,
		"event", event.Action,
		"log_type", "audit",
		"distribution_id", event.Subject,
		"reason", event.Reason,
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
