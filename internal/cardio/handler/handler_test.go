package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"cardgate/internal/cardio"
	"cardgate/internal/cardio/handler/mocks"
	"cardgate/pkg/domain"
	dErrors "cardgate/pkg/domain-errors"
	"cardgate/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/cardio-mocks.go -package=mocks Service

type tokenAuthenticator struct{}

func (tokenAuthenticator) Authenticate(_ context.Context, token string) (domain.Principal, error) {
	if token != "good" {
		return domain.Principal{}, errors.New("bad token")
	}
	return domain.Principal{ID: domain.NewUserID(), Role: domain.RoleRecipient}, nil
}

type CardHandlerSuite struct {
	suite.Suite
	svc    *mocks.MockService
	router chi.Router
}

func TestCardHandlerSuite(t *testing.T) {
	suite.Run(t, new(CardHandlerSuite))
}

func (s *CardHandlerSuite) SetupTest() {
	s.svc = mocks.NewMockService(gomock.NewController(s.T()))
	s.router = chi.NewRouter()
	New(s.svc, tokenAuthenticator{}, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *CardHandlerSuite) get(path, token string) *http.Request {
	req := testutil.NewRequest(s.T(), http.MethodGet, path)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func (s *CardHandlerSuite) TestReaders() {
	s.Run("lists readers", func() {
		s.svc.EXPECT().ListReaders(gomock.Any()).Return([]string{"ACS ACR122U 00"}, nil)
		rr := testutil.DoRequest(s.router, s.get("/api/readers", "good"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		body := testutil.UnmarshalResponse[readersResponse](s.T(), rr)
		s.Equal([]string{"ACS ACR122U 00"}, body.Readers)
	})

	s.Run("empty list is an array", func() {
		s.svc.EXPECT().ListReaders(gomock.Any()).Return(nil, nil)
		rr := testutil.DoRequest(s.router, s.get("/api/readers", "good"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		s.JSONEq(`{"readers":[]}`, rr.Body.String())
	})

	s.Run("requires bearer token", func() {
		rr := testutil.DoRequest(s.router, s.get("/api/readers", ""))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, string(dErrors.CodeUnauthorized))

		rr = testutil.DoRequest(s.router, s.get("/api/readers", "forged"))
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})
}

func (s *CardHandlerSuite) TestScan() {
	s.Run("returns identified cards", func() {
		s.svc.EXPECT().Scan(gomock.Any()).Return([]cardio.Card{{
			Reader: "ACS ACR122U 00",
			ATR:    "3B 81 80 01 80 80",
			Type:   cardio.TypeDESFireEV1,
			Specs:  &cardio.Specs{MemorySize: 8192},
		}}, nil)
		rr := testutil.DoRequest(s.router, s.get("/api/scan_card", "good"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		body := testutil.UnmarshalResponse[scanResponse](s.T(), rr)
		s.True(body.Success)
		s.Require().Len(body.Cards, 1)
		s.Equal(cardio.TypeDESFireEV1, body.Cards[0].Type)
	})

	s.Run("no readers", func() {
		s.svc.EXPECT().Scan(gomock.Any()).Return(nil, dErrors.New(dErrors.CodeNotFound, "no card readers found"))
		rr := testutil.DoRequest(s.router, s.get("/api/scan_card", "good"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
	})

	s.Run("device failure", func() {
		s.svc.EXPECT().Scan(gomock.Any()).Return(nil, dErrors.New(dErrors.CodeInternal, "failed to list card readers"))
		rr := testutil.DoRequest(s.router, s.get("/api/scan_card", "good"))
		testutil.AssertStatus(s.T(), rr, http.StatusInternalServerError)
	})
}

func (s *CardHandlerSuite) TestReadByUID() {
	s.Run("returns the matching card", func() {
		s.svc.EXPECT().Read(gomock.Any(), "04:A1:B2:C3").Return(&cardio.Card{
			Reader: "ACS ACR122U 00",
			UID:    "04:A1:B2:C3",
			Type:   cardio.TypeClassic1K,
		}, nil)
		rr := testutil.DoRequest(s.router, s.get("/api/cards/04:A1:B2:C3", "good"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		body := testutil.UnmarshalResponse[readResponse](s.T(), rr)
		s.True(body.Success)
		s.Require().NotNil(body.Card)
		s.Equal(cardio.TypeClassic1K, body.Card.Type)
	})

	s.Run("card not present", func() {
		s.svc.EXPECT().Read(gomock.Any(), "DEADBEEF").Return(nil, dErrors.New(dErrors.CodeNotFound, "card not present on any reader"))
		rr := testutil.DoRequest(s.router, s.get("/api/cards/DEADBEEF", "good"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
	})

	s.Run("malformed uid", func() {
		s.svc.EXPECT().Read(gomock.Any(), "zz").Return(nil, dErrors.New(dErrors.CodeValidation, "uid must be a hex string"))
		rr := testutil.DoRequest(s.router, s.get("/api/cards/zz", "good"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("requires bearer token", func() {
		rr := testutil.DoRequest(s.router, s.get("/api/cards/04A1B2C3", ""))
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})
}
