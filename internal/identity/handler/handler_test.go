package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"cardgate/internal/identity/handler/mocks"
	"cardgate/internal/identity/models"
	"cardgate/pkg/domain"
	dErrors "cardgate/pkg/domain-errors"
	"cardgate/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/identity-mocks.go -package=mocks Service

// tokenAuthenticator maps fixed bearer tokens to principals.
type tokenAuthenticator map[string]domain.Principal

func (a tokenAuthenticator) Authenticate(_ context.Context, token string) (domain.Principal, error) {
	if p, ok := a[token]; ok {
		return p, nil
	}
	return domain.Principal{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
}

type IdentityHandlerSuite struct {
	suite.Suite
	svc       *mocks.MockService
	router    chi.Router
	issuer    domain.Principal
	recipient domain.Principal
}

func TestIdentityHandlerSuite(t *testing.T) {
	suite.Run(t, new(IdentityHandlerSuite))
}

func (s *IdentityHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.svc = mocks.NewMockService(ctrl)
	s.issuer = domain.Principal{ID: domain.NewUserID(), Role: domain.RoleIssuer}
	s.recipient = domain.Principal{ID: domain.NewUserID(), Role: domain.RoleRecipient}

	authn := tokenAuthenticator{"issuer-token": s.issuer, "recipient-token": s.recipient}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = chi.NewRouter()
	New(s.svc, authn, logger).Register(s.router)
}

func (s *IdentityHandlerSuite) user(p domain.Principal, name string) *models.User {
	return &models.User{ID: p.ID, Username: name, Email: name + "@example.com", Role: p.Role, CreatedAt: time.Now()}
}

func (s *IdentityHandlerSuite) TestRegister() {
	s.Run("creates and hides the password hash", func() {
		u := s.user(s.recipient, "jo")
		u.PasswordHash = "bcrypt-hash"
		s.svc.EXPECT().Register(gomock.Any(), &models.RegisterRequest{Username: "jo", Email: "jo@example.com", Password: "password123"}).
			Return(u, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register",
			map[string]string{"username": "jo", "email": "jo@example.com", "password": "password123"})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		s.NotContains(rr.Body.String(), "bcrypt-hash")
		s.Contains(rr.Body.String(), `"role":"recipient"`)
	})

	s.Run("conflict maps to 409", func() {
		s.svc.EXPECT().Register(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "username or email already registered"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register",
			map[string]string{"username": "jo", "email": "jo@example.com", "password": "password123"})
		testutil.AssertStatusAndError(s.T(), testutil.DoRequest(s.router, req), http.StatusConflict, "conflict")
	})

	s.Run("unknown fields are rejected", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/register", map[string]string{"role": "issuer"})
		testutil.AssertStatusAndError(s.T(), testutil.DoRequest(s.router, req), http.StatusBadRequest, "bad_request")
	})
}

func (s *IdentityHandlerSuite) TestLogin() {
	s.svc.EXPECT().Login(gomock.Any(), &models.LoginRequest{Username: "jo", Password: "password123"}).
		Return(&models.TokenResponse{AccessToken: "tok", TokenType: "Bearer", ExpiresIn: 3600}, nil)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login", map[string]string{"username": "jo", "password": "password123"})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[models.TokenResponse](s.T(), rr)
	s.Equal("tok", resp.AccessToken)
}

func (s *IdentityHandlerSuite) TestMe() {
	s.Run("requires a bearer token", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/auth/me"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("returns the caller", func() {
		s.svc.EXPECT().Get(gomock.Any(), s.recipient.ID).Return(s.user(s.recipient, "jo"), nil)
		req := testutil.NewRequest(s.T(), http.MethodGet, "/auth/me")
		req.Header.Set("Authorization", "Bearer recipient-token")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		testutil.AssertJSONContains(s.T(), rr, "username", "jo")
	})
}

func (s *IdentityHandlerSuite) TestUsersRequireIssuer() {
	s.Run("recipient is forbidden", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/api/users")
		req.Header.Set("Authorization", "Bearer recipient-token")
		testutil.AssertStatusAndError(s.T(), testutil.DoRequest(s.router, req), http.StatusForbidden, "forbidden")
	})

	s.Run("issuer lists recipients", func() {
		s.svc.EXPECT().ListRecipients(gomock.Any()).Return([]*models.User{s.user(s.recipient, "jo")}, nil)
		req := testutil.NewRequest(s.T(), http.MethodGet, "/api/users")
		req.Header.Set("Authorization", "Bearer issuer-token")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		s.Contains(rr.Body.String(), `"username":"jo"`)
	})

	s.Run("issuer creates a recipient", func() {
		s.svc.EXPECT().CreateRecipient(gomock.Any(), s.issuer, gomock.Any()).Return(s.user(s.recipient, "kim"), nil)
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/users",
			map[string]string{"username": "kim", "email": "kim@example.com", "password": "password123"})
		req.Header.Set("Authorization", "Bearer issuer-token")
		testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusCreated)
	})
}
