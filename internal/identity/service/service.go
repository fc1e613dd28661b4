package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cardgate/internal/identity/models"
	"cardgate/internal/identity/secrets"
	"cardgate/pkg/domain"
	dErrors "cardgate/pkg/domain-errors"
	"cardgate/pkg/platform/audit"
	"cardgate/pkg/platform/sentinel"
	"cardgate/pkg/requestcontext"
)

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id domain.UserID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []domain.UserID) ([]*models.User, error)
	ListByRole(ctx context.Context, role domain.Role) ([]*models.User, error)
}

// TokenIssuer mints and verifies bearer tokens for principals.
type TokenIssuer interface {
	GenerateAccessToken(principal domain.Principal, expiresIn time.Duration) (string, error)
	Principal(token string) (domain.Principal, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service owns users, credentials and access tokens.
type Service struct {
	users          UserStore
	tokens         TokenIssuer
	tokenTTL       time.Duration
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

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.tokenTTL = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(users UserStore, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{
		users:    users,
		tokens:   tokens,
		tokenTTL: time.Hour,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a recipient account from self-service signup.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	return s.createUser(ctx, req, domain.RoleRecipient, "")
}

// CreateRecipient creates a recipient account on behalf of an issuer.
func (s *Service) CreateRecipient(ctx context.Context, issuer domain.Principal, req *models.RegisterRequest) (*models.User, error) {
	if !issuer.Role.IsIssuer() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only issuers can create users")
	}
	return s.createUser(ctx, req, domain.RoleRecipient, issuer.ID.String())
}

// SeedIssuer creates the bootstrap issuer. An existing account with the same
// username is left unchanged.
func (s *Service) SeedIssuer(ctx context.Context, username, email, password string) (*models.User, error) {
	existing, err := s.users.FindByUsername(ctx, username)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up seed issuer")
	}
	req := &models.RegisterRequest{Username: username, Email: email, Password: password}
	return s.createUser(ctx, req, domain.RoleIssuer, "")
}

func (s *Service) createUser(ctx context.Context, req *models.RegisterRequest, role domain.Role, actorID string) (*models.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hash, err := secrets.HashPassword(req.Password)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	user, err := models.NewUser(domain.NewUserID(), req.Username, req.Email, hash, role, s.now())
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "username or email already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	s.emit(ctx, audit.Event{
		UserID:  user.ID,
		Subject: user.ID.String(),
		Action:  string(audit.EventUserCreated),
		ActorID: actorID,
	})
	return user, nil
}

// Login verifies credentials and issues an access token. Unknown usernames and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.TokenResponse, error) {
	invalid := dErrors.New(dErrors.CodeUnauthorized, "invalid username or password")

	user, err := s.users.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.emit(ctx, audit.Event{Subject: req.Username, Action: string(audit.EventLoginFailed), Reason: "unknown_user"})
			return nil, invalid
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	if err := secrets.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			s.emit(ctx, audit.Event{UserID: user.ID, Subject: user.Username, Action: string(audit.EventLoginFailed), Reason: "bad_password"})
			return nil, invalid
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
	}

	token, err := s.tokens.GenerateAccessToken(user.Principal(), s.tokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}
	s.emit(ctx, audit.Event{UserID: user.ID, Subject: user.Username, Action: string(audit.EventLoginSuccess)})

	return &models.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokenTTL.Seconds()),
	}, nil
}

// Authenticate resolves a bearer token to a principal whose account still exists.
func (s *Service) Authenticate(ctx context.Context, bearerToken string) (domain.Principal, error) {
	principal, err := s.tokens.Principal(bearerToken)
	if err != nil {
		return domain.Principal{}, err
	}
	if _, err := s.users.FindByID(ctx, principal.ID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domain.Principal{}, dErrors.New(dErrors.CodeUnauthorized, "account no longer exists")
		}
		return domain.Principal{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return principal, nil
}

func (s *Service) Get(ctx context.Context, id domain.UserID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

// PrincipalOf returns the role-bearing identity for a user ID.
func (s *Service) PrincipalOf(ctx context.Context, id domain.UserID) (domain.Principal, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return domain.Principal{}, err
	}
	return user.Principal(), nil
}

// Usernames resolves display names for a set of users in one query.
func (s *Service) Usernames(ctx context.Context, ids []domain.UserID) (map[domain.UserID]string, error) {
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load users")
	}
	out := make(map[domain.UserID]string, len(users))
	for _, u := range users {
		out[u.ID] = u.Username
	}
	return out, nil
}

func (s *Service) ListRecipients(ctx context.Context) ([]*models.User, error) {
	users, err := s.users.ListByRole(ctx, domain.RoleRecipient)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list recipients")
	}
	return users, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	requestID := requestcontext.RequestID(ctx)
	s.logger.InfoContext(ctx, event.Action,
		"event", event.Action,
		"log_type", "audit",
		"user_id", event.UserID.String(),
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
