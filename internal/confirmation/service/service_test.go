package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	distmetrics "cardgate/internal/distribution/metrics"
	distmodels "cardgate/internal/distribution/models"
	distservice "cardgate/internal/distribution/service"
	diststore "cardgate/internal/distribution/store"
	programmodels "cardgate/internal/program/models"
	"cardgate/pkg/domain"
	dErrors "cardgate/pkg/domain-errors"
	"cardgate/pkg/platform/audit"
	auditpublisher "cardgate/pkg/platform/audit/publisher"
	auditmemory "cardgate/pkg/platform/audit/store/memory"
)

type stubPrograms struct{ p *programmodels.Program }

func (s stubPrograms) Get(context.Context, domain.ProgramID) (*programmodels.Program, error) {
	return s.p, nil
}

type stubDirectory struct{}

func (stubDirectory) PrincipalOf(_ context.Context, id domain.UserID) (domain.Principal, error) {
	return domain.Principal{ID: id, Role: domain.RoleRecipient}, nil
}

func (stubDirectory) Usernames(context.Context, []domain.UserID) (map[domain.UserID]string, error) {
	return map[domain.UserID]string{}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []audit.Event
}

func (p *recordingPublisher) Emit(_ context.Context, e audit.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type ConfirmationSuite struct {
	suite.Suite
	ctx     context.Context
	ledger  *distservice.Service
	metrics *distmetrics.Metrics
	audit   *recordingPublisher
	svc     *Service
	issuer  domain.Principal
	program *programmodels.Program
}

func TestConfirmationSuite(t *testing.T) {
	suite.Run(t, new(ConfirmationSuite))
}

func (s *ConfirmationSuite) SetupTest() {
	s.ctx = context.Background()
	s.issuer = domain.Principal{ID: domain.NewUserID(), Role: domain.RoleIssuer}
	program, err := programmodels.NewProgram(domain.NewProgramID(), s.issuer.ID, "Gym", "", json.RawMessage(`{}`), time.Now())
	s.Require().NoError(err)
	s.program = program

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.ledger = distservice.New(diststore.NewInMemory(), stubPrograms{p: program}, stubDirectory{}, distservice.WithLogger(logger))
	s.metrics = distmetrics.New(prometheus.NewRegistry())
	s.audit = &recordingPublisher{}
	s.svc = New(s.ledger, WithLogger(logger), WithMetrics(s.metrics), WithAuditPublisher(s.audit))
}

func (s *ConfirmationSuite) distribute(ttl time.Duration) *distmodels.Distribution {
	d, err := s.ledger.Create(s.ctx, s.issuer, s.program.ID, domain.NewUserID(), ttl)
	s.Require().NoError(err)
	return d
}

func (s *ConfirmationSuite) TestConfirmOnce() {
	d := s.distribute(time.Hour)

	s.Require().NoError(s.svc.Confirm(s.ctx, d.Token))
	err := s.svc.Confirm(s.ctx, d.Token)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyConsumed))

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Confirmations.WithLabelValues(distmetrics.OutcomeConsumed)))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Confirmations.WithLabelValues(distmetrics.OutcomeAlreadyConsumed)))
	s.Require().Len(s.audit.events, 2)
	s.Equal(string(audit.EventDistributionUsed), s.audit.events[0].Action)
	s.Equal(d.RecipientID, s.audit.events[0].UserID)
	s.Equal(string(audit.EventConfirmRejected), s.audit.events[1].Action)
	s.Equal(d.RecipientID, s.audit.events[1].UserID)
	s.Equal(d.ID.String(), s.audit.events[1].Subject)
}

func (s *ConfirmationSuite) TestRejectionIsAttributed() {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	svc := New(s.ledger, WithLogger(logger), WithAuditPublisher(s.audit))

	s.Run("expired link names its row", func() {
		d := s.distribute(-time.Second)
		buf.Reset()
		s.True(dErrors.HasCode(svc.Confirm(s.ctx, d.Token), dErrors.CodeExpired))
		last := s.audit.events[len(s.audit.events)-1]
		s.Equal(d.ID.String(), last.Subject)
		s.Equal(d.RecipientID, last.UserID)
		s.Contains(buf.String(), d.ID.String())
		s.Contains(buf.String(), d.RecipientID.String())
		s.NotContains(buf.String(), d.Token)
	})

	s.Run("unknown token is logged by fingerprint only", func() {
		const token = "never-issued-token"
		buf.Reset()
		s.True(dErrors.HasCode(svc.Confirm(s.ctx, token), dErrors.CodeNotFound))
		s.Contains(buf.String(), `"token_fingerprint":"`+distmodels.TokenFingerprint(token)+`"`)
		s.NotContains(buf.String(), token)
	})
}

func (s *ConfirmationSuite) TestExpiredNeverFetched() {
	d := s.distribute(-time.Second)
	s.True(dErrors.HasCode(s.svc.Confirm(s.ctx, d.Token), dErrors.CodeExpired))
}

func (s *ConfirmationSuite) TestUnknownToken() {
	s.True(dErrors.HasCode(s.svc.Confirm(s.ctx, "never-issued"), dErrors.CodeNotFound))
	s.True(dErrors.HasCode(s.svc.Confirm(s.ctx, ""), dErrors.CodeNotFound))
}

func (s *ConfirmationSuite) TestSimultaneousConfirms() {
	d := s.distribute(time.Hour)

	const n = 50
	results := make(chan error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results <- s.svc.Confirm(s.ctx, d.Token)
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var ok, consumed int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case dErrors.HasCode(err, dErrors.CodeAlreadyConsumed):
			consumed++
		}
	}
	s.Equal(1, ok)
	s.Equal(n-1, consumed)
}

type brokenLedger struct{}

func (brokenLedger) Consume(context.Context, string) (*distmodels.Distribution, error) {
	return nil, dErrors.Wrap(errors.New("connection refused"), dErrors.CodeInternal, "failed to consume distribution")
}

func (brokenLedger) Lookup(context.Context, string) (*distmodels.Distribution, error) {
	return nil, dErrors.Wrap(errors.New("connection refused"), dErrors.CodeInternal, "failed to load distribution")
}

func (s *ConfirmationSuite) TestInternalFailureIsNotAudited() {
	publisher := &recordingPublisher{}
	svc := New(brokenLedger{}, WithAuditPublisher(publisher), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.True(dErrors.HasCode(svc.Confirm(s.ctx, "tok"), dErrors.CodeInternal))
	s.Empty(publisher.events)
}

func (s *ConfirmationSuite) TestAuditReachesStore() {
	publisher := auditpublisher.NewPublisher(auditmemory.NewInMemoryStore())
	defer publisher.Close()
	svc := New(s.ledger, WithAuditPublisher(publisher), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	d := s.distribute(time.Hour)
	s.Require().NoError(svc.Confirm(s.ctx, d.Token))

	events, err := publisher.List(s.ctx, d.RecipientID)
	s.Require().NoError(err)
	s.Len(events, 1)
}
