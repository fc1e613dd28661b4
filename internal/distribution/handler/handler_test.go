package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"cardgate/internal/distribution/handler/mocks"
	"cardgate/internal/distribution/models"
	"cardgate/pkg/domain"
	dErrors "cardgate/pkg/domain-errors"
	"cardgate/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/distribution-mocks.go -package=mocks Service

type staticAuthenticator struct{ principal domain.Principal }

func (a staticAuthenticator) Authenticate(context.Context, string) (domain.Principal, error) {
	return a.principal, nil
}

type DistributionHandlerSuite struct {
	suite.Suite
	svc    *mocks.MockService
	issuer domain.Principal
	router chi.Router
}

func TestDistributionHandlerSuite(t *testing.T) {
	suite.Run(t, new(DistributionHandlerSuite))
}

func (s *DistributionHandlerSuite) SetupTest() {
	s.svc = mocks.NewMockService(gomock.NewController(s.T()))
	s.issuer = domain.Principal{ID: domain.NewUserID(), Role: domain.RoleIssuer}
	s.router = s.routerFor(s.issuer)
}

func (s *DistributionHandlerSuite) routerFor(p domain.Principal) chi.Router {
	r := chi.NewRouter()
	New(s.svc, staticAuthenticator{principal: p}, slog.New(slog.NewTextHandler(io.Discard, nil)), "https://cards.example.test/").Register(r)
	return r
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer t")
	return req
}

func (s *DistributionHandlerSuite) distribution(programID domain.ProgramID, recipientID domain.UserID) *models.Distribution {
	d, err := models.NewDistribution(domain.NewDistributionID(), programID, recipientID, s.issuer.ID, "tok_abc-123", time.Hour, time.Now())
	s.Require().NoError(err)
	return d
}

func (s *DistributionHandlerSuite) TestCreate() {
	programID, recipientID := domain.NewProgramID(), domain.NewUserID()

	s.Run("201 returns token and delivery link", func() {
		d := s.distribution(programID, recipientID)
		s.svc.EXPECT().Create(gomock.Any(), s.issuer, programID, recipientID, 10*time.Minute).Return(d, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/distributions", map[string]any{
			"program_id": programID.String(), "recipient_id": recipientID.String(), "ttl_seconds": 600,
		})
		rr := testutil.DoRequest(s.router, authed(req))
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		testutil.AssertJSONContains(s.T(), rr, "token", "tok_abc-123")
		testutil.AssertJSONContains(s.T(), rr, "link", "https://cards.example.test/api/program_data/tok_abc-123")
		testutil.AssertJSONContains(s.T(), rr, "state", "pending")
	})

	s.Run("omitted ttl is passed as zero", func() {
		s.svc.EXPECT().Create(gomock.Any(), s.issuer, programID, recipientID, time.Duration(0)).
			Return(s.distribution(programID, recipientID), nil)
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/distributions", map[string]any{
			"program_id": programID.String(), "recipient_id": recipientID.String(),
		})
		testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, authed(req)), http.StatusCreated)
	})

	s.Run("malformed ids never reach the service", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/distributions", map[string]any{
			"program_id": "x", "recipient_id": recipientID.String(),
		})
		rr := testutil.DoRequest(s.router, authed(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("program owned by someone else is 403", func() {
		s.svc.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "program belongs to another issuer"))
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/distributions", map[string]any{
			"program_id": programID.String(), "recipient_id": recipientID.String(),
		})
		rr := testutil.DoRequest(s.router, authed(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, string(dErrors.CodeForbidden))
	})

	s.Run("recipients cannot reach issuer routes", func() {
		recipient := s.routerFor(domain.Principal{ID: recipientID, Role: domain.RoleRecipient})
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/distributions", map[string]any{})
		rr := testutil.DoRequest(recipient, authed(req))
		testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
	})

	s.Run("missing bearer is 401", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/distributions", map[string]any{})
		testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusUnauthorized)
	})
}

func (s *DistributionHandlerSuite) TestRedistribute() {
	id := domain.NewDistributionID()

	s.Run("empty body keeps the default ttl", func() {
		s.svc.EXPECT().Redistribute(gomock.Any(), s.issuer, id, time.Duration(0)).
			Return(s.distribution(domain.NewProgramID(), domain.NewUserID()), nil)
		req := testutil.NewRequest(s.T(), http.MethodPost, "/api/distributions/"+id.String()+"/redistribute")
		testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, authed(req)), http.StatusCreated)
	})

	s.Run("explicit ttl", func() {
		s.svc.EXPECT().Redistribute(gomock.Any(), s.issuer, id, time.Hour).
			Return(s.distribution(domain.NewProgramID(), domain.NewUserID()), nil)
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/distributions/"+id.String()+"/redistribute", map[string]any{"ttl_seconds": 3600})
		testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, authed(req)), http.StatusCreated)
	})

	s.Run("unknown distribution is 404", func() {
		s.svc.EXPECT().Redistribute(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "distribution not found"))
		req := testutil.NewRequest(s.T(), http.MethodPost, "/api/distributions/"+id.String()+"/redistribute")
		testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, authed(req)), http.StatusNotFound)
	})
}

func (s *DistributionHandlerSuite) TestListings() {
	s.Run("issuer listing never exposes tokens", func() {
		d := s.distribution(domain.NewProgramID(), domain.NewUserID())
		s.svc.EXPECT().ListForIssuer(gomock.Any(), s.issuer.ID).
			Return([]models.Entry{models.NewEntry(d, "Gym", "alice", time.Now())}, nil)

		rr := testutil.DoRequest(s.router, authed(testutil.NewRequest(s.T(), http.MethodGet, "/api/distributions")))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		body := rr.Body.String()
		s.True(strings.Contains(body, `"recipient_username":"alice"`))
		s.False(strings.Contains(body, d.Token))
	})

	s.Run("recipient sees own distributions", func() {
		recipient := domain.Principal{ID: domain.NewUserID(), Role: domain.RoleRecipient}
		s.svc.EXPECT().ListForRecipient(gomock.Any(), recipient.ID).Return(nil, nil)

		rr := testutil.DoRequest(s.routerFor(recipient), authed(testutil.NewRequest(s.T(), http.MethodGet, "/api/me/distributions")))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
	})

	s.Run("storage failure hides details", func() {
		s.svc.EXPECT().ListForIssuer(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.Wrap(io.ErrUnexpectedEOF, dErrors.CodeInternal, "failed to list distributions"))
		rr := testutil.DoRequest(s.router, authed(testutil.NewRequest(s.T(), http.MethodGet, "/api/distributions")))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, string(dErrors.CodeInternal))
		s.NotContains(rr.Body.String(), "unexpected EOF")
	})
}
