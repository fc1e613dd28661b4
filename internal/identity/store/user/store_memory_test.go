package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"cardgate/internal/identity/models"
	"cardgate/pkg/domain"
	"cardgate/pkg/platform/sentinel"
)

type InMemoryUserStoreSuite struct {
	suite.Suite
	store *InMemoryUserStore
	ctx   context.Context
}

func TestInMemoryUserStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryUserStoreSuite))
}

func (s *InMemoryUserStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *InMemoryUserStoreSuite) newUser(username string, role domain.Role) *models.User {
	return &models.User{
		ID:           domain.NewUserID(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
		Role:         role,
		CreatedAt:    time.Now(),
	}
}

func (s *InMemoryUserStoreSuite) TestLookups() {
	alice := s.newUser("alice", domain.RoleRecipient)
	s.Require().NoError(s.store.Create(s.ctx, alice))

	s.Run("by id", func() {
		found, err := s.store.FindByID(s.ctx, alice.ID)
		s.Require().NoError(err)
		s.Equal(alice.Username, found.Username)
	})

	s.Run("by username is case-insensitive", func() {
		found, err := s.store.FindByUsername(s.ctx, "ALICE")
		s.Require().NoError(err)
		s.Equal(alice.ID, found.ID)
	})

	s.Run("unknown id", func() {
		_, err := s.store.FindByID(s.ctx, domain.NewUserID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("batch skips missing", func() {
		found, err := s.store.FindByIDs(s.ctx, []domain.UserID{alice.ID, domain.NewUserID()})
		s.Require().NoError(err)
		s.Len(found, 1)
	})
}

func (s *InMemoryUserStoreSuite) TestUniqueness() {
	s.Require().NoError(s.store.Create(s.ctx, s.newUser("bob", domain.RoleRecipient)))

	s.Run("duplicate username", func() {
		dup := s.newUser("Bob", domain.RoleRecipient)
		dup.Email = "other@example.com"
		s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrConflict)
	})

	s.Run("duplicate email", func() {
		dup := s.newUser("robert", domain.RoleRecipient)
		dup.Email = "bob@example.com"
		s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrConflict)
	})
}

func (s *InMemoryUserStoreSuite) TestListByRole() {
	s.Require().NoError(s.store.Create(s.ctx, s.newUser("zed", domain.RoleRecipient)))
	s.Require().NoError(s.store.Create(s.ctx, s.newUser("amy", domain.RoleRecipient)))
	s.Require().NoError(s.store.Create(s.ctx, s.newUser("boss", domain.RoleIssuer)))

	recipients, err := s.store.ListByRole(s.ctx, domain.RoleRecipient)
	s.Require().NoError(err)
	s.Require().Len(recipients, 2)
	s.Equal("amy", recipients[0].Username)
	s.Equal("zed", recipients[1].Username)
}
