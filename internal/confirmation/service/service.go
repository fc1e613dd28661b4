package service

import (
	"context"
	"log/slog"

	distmetrics "cardgate/internal/distribution/metrics"
	distmodels "cardgate/internal/distribution/models"
	dErrors "cardgate/pkg/domain-errors"
	"cardgate/pkg/platform/audit"
	"cardgate/pkg/requestcontext"
)

type Ledger interface {
	Consume(ctx context.Context, token string) (*distmodels.Distribution, error)
	Lookup(ctx context.Context, token string) (*distmodels.Distribution, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the confirmation channel: the only caller of Consume and so the
// only place a distribution becomes used.
type Service struct {
	ledger         Ledger
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

func New(ledger Ledger, opts ...Option) *Service {
	s := &Service{ledger: ledger, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Confirm records that the payload behind token was written. A retry after an
// ambiguous failure sees AlreadyConsumed; clients treat that as success.
func (s *Service) Confirm(ctx context.Context, token string) error {
	d, err := s.ledger.Consume(ctx, token)
	if err != nil {
		code := dErrors.CodeOf(err)
		s.metrics.IncrementConfirmation(distmetrics.OutcomeFor(code))
		if code != dErrors.CodeInternal {
			s.rejected(ctx, token, code)
		}
		return err
	}

	s.metrics.IncrementConfirmation(distmetrics.OutcomeConsumed)
	s.emit(ctx, audit.Event{
		UserID:   d.RecipientID,
		Subject:  d.ID.String(),
		Action:   string(audit.EventDistributionUsed),
		Decision: "granted",
	})
	return nil
}

// rejected audits a refused confirmation. Replays and late confirms name a
// real row, so it is looked up to attribute the attempt; unknown tokens are
// identified by fingerprint only.
func (s *Service) rejected(ctx context.Context, token string, code dErrors.Code) {
	event := audit.Event{
		Action:   string(audit.EventConfirmRejected),
		Decision: "denied",
		Reason:   string(code),
	}
	if code == dErrors.CodeAlreadyConsumed || code == dErrors.CodeExpired {
		if d, err := s.ledger.Lookup(ctx, token); err == nil {
			event.UserID = d.RecipientID
			event.Subject = d.ID.String()
		}
	}
	s.emit(ctx, event, "token_fingerprint", distmodels.TokenFingerprint(token))
}

func (s *Service) emit(ctx context.Context, event audit.Event, attrs ...any) {
	requestID := requestcontext.RequestID(ctx)
	args := []any{
		"event", event.Action,
		"log_type", "audit",
		"distribution_id", event.Subject,
		"reason", event.Reason,
		"request_id", requestID,
	}
	if !event.UserID.IsNil() {
		args = append(args, "user_id", event.UserID.String())
	}
	s.logger.InfoContext(ctx, event.Action, append(args, attrs...)...)
	if s.auditPublisher == nil {
		return
	}
	event.RequestID = requestID
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "error", err, "action", event.Action)
	}
}
