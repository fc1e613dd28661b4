package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cardgate/internal/distribution/metrics"
	"cardgate/internal/distribution/models"
	programmodels "cardgate/internal/program/models"
	"cardgate/pkg/domain"
	dErrors "cardgate/pkg/domain-errors"
	"cardgate/pkg/platform/audit"
	"cardgate/pkg/platform/sentinel"
	txcontext "cardgate/pkg/platform/tx"
	"cardgate/pkg/requestcontext"
)

const (
	tracerName = "cardgate/distribution"
	// maxTokenAttempts bounds retries after a token collision.
	maxTokenAttempts = 3
)

type Store interface {
	Create(ctx context.Context, d *models.Distribution) error
	FindByID(ctx context.Context, id domain.DistributionID) (*models.Distribution, error)
	FindByToken(ctx context.Context, token string) (*models.Distribution, error)
	TouchFetched(ctx context.Context, id domain.DistributionID, at time.Time) error
	Consume(ctx context.Context, token string, at time.Time) (*models.Distribution, error)
	ListByIssuer(ctx context.Context, issuer domain.UserID) ([]*models.Distribution, error)
	ListByRecipient(ctx context.Context, recipient domain.UserID) ([]*models.Distribution, error)
}

// Programs resolves programs; errors carry domain codes.
type Programs interface {
	Get(ctx context.Context, id domain.ProgramID) (*programmodels.Program, error)
}

// Directory resolves principals and display names; errors carry domain codes.
type Directory interface {
	PrincipalOf(ctx context.Context, id domain.UserID) (domain.Principal, error)
	Usernames(ctx context.Context, ids []domain.UserID) (map[domain.UserID]string, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the distribution ledger: it mints tokens, answers lookups and
// performs the one-time consume.
type Service struct {
	store          Store
	programs       Programs
	directory      Directory
	tx             TxRunner
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	now            func() time.Time
	newToken       func() (string, error)
	defaultTTL     time.Duration
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithTxRunner makes Create run its checks and insert in one transaction.
func WithTxRunner(runner TxRunner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer(tracerName)
	}
}

// WithTokenSource replaces the random token generator.
func WithTokenSource(fn func() (string, error)) Option {
	return func(s *Service) {
		s.newToken = fn
	}
}

// WithDefaultTTL sets the lifetime used when a caller passes zero.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

func New(store Store, programs Programs, directory Directory, opts ...Option) *Service {
	s := &Service{
		store:      store,
		programs:   programs,
		directory:  directory,
		tx:         txcontext.NoopRunner{},
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
		newToken:   models.NewToken,
		defaultTTL: models.DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create grants recipientID one-time access to programID. A zero ttl selects
// the default; a negative ttl produces an already expired distribution.
func (s *Service) Create(ctx context.Context, issuer domain.Principal, programID domain.ProgramID, recipientID domain.UserID, ttl time.Duration) (_ *models.Distribution, err error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Create", trace.WithAttributes(
		attribute.String("program.id", programID.String()),
		attribute.String("recipient.id", recipientID.String()),
	))
	defer func() { endSpan(span, err) }()

	if !issuer.Role.IsIssuer() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only issuers can distribute programs")
	}
	if ttl == 0 {
		ttl = s.defaultTTL
	}

	// A unique violation aborts a Postgres transaction, so each token
	// attempt gets a transaction of its own.
	var created *models.Distribution
	for attempt := 1; ; attempt++ {
		err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
			if err := s.checkGrant(ctx, issuer.ID, programID, recipientID); err != nil {
				return err
			}
			d, err := s.mint(ctx, issuer.ID, programID, recipientID, ttl)
			if err != nil {
				return err
			}
			created = d
			return nil
		})
		if !errors.Is(err, sentinel.ErrConflict) {
			break
		}
		if attempt == maxTokenAttempts {
			return nil, dErrors.New(dErrors.CodeInternal, "failed to allocate a unique token")
		}
		s.logger.WarnContext(ctx, "token collision, retrying",
			"attempt", attempt,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("distribution.id", created.ID.String()))
	s.metrics.IncrementCreated()
	s.emit(ctx, audit.Event{
		UserID:  recipientID,
		Subject: created.ID.String(),
		Action:  string(audit.EventDistributionCreated),
		ActorID: issuer.ID.String(),
	})
	return created, nil
}

func (s *Service) checkGrant(ctx context.Context, issuer domain.UserID, programID domain.ProgramID, recipientID domain.UserID) error {
	program, err := s.programs.Get(ctx, programID)
	if err != nil {
		return err
	}
	if !program.OwnedBy(issuer) {
		return dErrors.New(dErrors.CodeForbidden, "program belongs to another issuer")
	}
	if !program.Active {
		return dErrors.New(dErrors.CodeValidation, "program is inactive")
	}
	recipient, err := s.directory.PrincipalOf(ctx, recipientID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "recipient not found")
		}
		return err
	}
	if recipient.Role != domain.RoleRecipient {
		return dErrors.New(dErrors.CodeValidation, "programs can only be distributed to recipients")
	}
	return nil
}

// mint inserts one distribution. A token collision comes back as
// sentinel.ErrConflict so the caller can retry in a fresh transaction.
func (s *Service) mint(ctx context.Context, issuer domain.UserID, programID domain.ProgramID, recipientID domain.UserID, ttl time.Duration) (*models.Distribution, error) {
	token, err := s.newToken()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate token")
	}
	d, err := models.NewDistribution(domain.NewDistributionID(), programID, recipientID, issuer, token, ttl, s.now())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build distribution")
	}
	if err := s.store.Create(ctx, d); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, sentinel.ErrConflict
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create distribution")
	}
	return d, nil
}

// Redistribute mints a fresh token for the same program and recipient. The
// original distribution is left as it is.
func (s *Service) Redistribute(ctx context.Context, issuer domain.Principal, id domain.DistributionID, ttl time.Duration) (*models.Distribution, error) {
	original, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "distribution not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load distribution")
	}
	if original.IssuerID != issuer.ID {
		return nil, dErrors.New(dErrors.CodeForbidden, "distribution belongs to another issuer")
	}
	return s.Create(ctx, issuer, original.ProgramID, original.RecipientID, ttl)
}

// Lookup finds the distribution for token. Implausible tokens never reach the
// store.
func (s *Service) Lookup(ctx context.Context, token string) (_ *models.Distribution, err error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Lookup")
	defer func() { endSpan(span, err) }()

	if !models.PlausibleToken(token) {
		return nil, dErrors.New(dErrors.CodeNotFound, "link not found")
	}
	d, err := s.store.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "link not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load distribution")
	}
	span.SetAttributes(attribute.String("distribution.id", d.ID.String()))
	return d, nil
}

// CheckDeliverable evaluates d against the service clock.
func (s *Service) CheckDeliverable(d *models.Distribution) error {
	return models.CheckDeliverable(d, s.now())
}

// Now is the ledger's clock, shared with collaborators that stamp responses.
func (s *Service) Now() time.Time {
	return s.now()
}

// TouchFetched records a payload fetch on d. It never changes status.
func (s *Service) TouchFetched(ctx context.Context, d *models.Distribution) (err error) {
	ctx, span := s.tracer.Start(ctx, "ledger.TouchFetched", trace.WithAttributes(
		attribute.String("distribution.id", d.ID.String()),
	))
	defer func() { endSpan(span, err) }()

	at := s.now()
	if err := s.store.TouchFetched(ctx, d.ID, at); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "link not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record fetch")
	}
	d.LastAccessedAt = &at
	return nil
}

// Consume atomically moves the token's distribution to consumed. Exactly one
// of any number of concurrent callers succeeds.
func (s *Service) Consume(ctx context.Context, token string) (_ *models.Distribution, err error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Consume")
	defer func() { endSpan(span, err) }()

	if !models.PlausibleToken(token) {
		return nil, dErrors.New(dErrors.CodeNotFound, "link not found")
	}
	start := time.Now()
	d, err := s.store.Consume(ctx, token, s.now())
	s.metrics.ObserveConsume(time.Since(start))
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "link not found")
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			return nil, dErrors.New(dErrors.CodeAlreadyConsumed, "this link has already been used")
		case errors.Is(err, sentinel.ErrExpired):
			return nil, dErrors.New(dErrors.CodeExpired, "this link has expired")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume distribution")
		}
	}
	span.SetAttributes(attribute.String("distribution.id", d.ID.String()))
	return d, nil
}

// ListForIssuer returns the issuer's distributions, newest first.
func (s *Service) ListForIssuer(ctx context.Context, issuer domain.UserID) ([]models.Entry, error) {
	rows, err := s.store.ListByIssuer(ctx, issuer)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list distributions")
	}
	return s.entries(ctx, rows)
}

// ListForRecipient returns what has been distributed to recipient, newest first.
func (s *Service) ListForRecipient(ctx context.Context, recipient domain.UserID) ([]models.Entry, error) {
	rows, err := s.store.ListByRecipient(ctx, recipient)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list distributions")
	}
	return s.entries(ctx, rows)
}

func (s *Service) entries(ctx context.Context, rows []*models.Distribution) ([]models.Entry, error) {
	var (
		recipients   []domain.UserID
		seen         = make(map[domain.UserID]struct{})
		programNames = make(map[domain.ProgramID]string)
	)
	for _, d := range rows {
		if _, ok := seen[d.RecipientID]; !ok {
			seen[d.RecipientID] = struct{}{}
			recipients = append(recipients, d.RecipientID)
		}
		if _, ok := programNames[d.ProgramID]; ok {
			continue
		}
		program, err := s.programs.Get(ctx, d.ProgramID)
		if err != nil {
			return nil, err
		}
		programNames[d.ProgramID] = program.Name
	}

	usernames := map[domain.UserID]string{}
	if len(recipients) > 0 {
		var err error
		if usernames, err = s.directory.Usernames(ctx, recipients); err != nil {
			return nil, err
		}
	}

	now := s.now()
	out := make([]models.Entry, 0, len(rows))
	for _, d := range rows {
		out = append(out, models.NewEntry(d, programNames[d.ProgramID], usernames[d.RecipientID], now))
	}
	return out, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	requestID := requestcontext.RequestID(ctx)
	s.logger.InfoContext(ctx, event.Action,
		"event", event.Action,
		"log_type", "audit",
		"distribution_id", event.Subject,
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

// endSpan marks client-caused outcomes with their code and only flags
// internal failures as span errors.
func endSpan(span trace.Span, err error) {
	if err != nil {
		code := dErrors.CodeOf(err)
		span.SetAttributes(attribute.String("error.code", string(code)))
		if code == dErrors.CodeInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, "internal error")
		}
	}
	span.End()
}
