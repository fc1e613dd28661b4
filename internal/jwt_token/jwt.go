// Package jwttoken signs and verifies the bearer tokens issued at login.
// Card access links use opaque tokens from the distribution ledger instead.
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"cardgate/pkg/domain"
	dErrors "cardgate/pkg/domain-errors"
)

const audience = "cardgate-api"

// Claims carries the caller's role; the subject is the user ID.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type JWTService struct {
	key    []byte
	issuer string
	now    func() time.Time
}

func NewJWTService(signingKey, issuer string) *JWTService {
	return &JWTService{key: []byte(signingKey), issuer: issuer, now: time.Now}
}

func (s *JWTService) GenerateAccessToken(principal domain.Principal, expiresIn time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Role: principal.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.ID.String(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// ValidateToken maps every parse failure to CodeUnauthorized. Expiry gets its
// own message so clients know to log in again.
func (s *JWTService) ValidateToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
	case err != nil:
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return claims, nil
}

// Principal validates the token and returns the identity it carries.
func (s *JWTService) Principal(raw string) (domain.Principal, error) {
	claims, err := s.ValidateToken(raw)
	if err != nil {
		return domain.Principal{}, err
	}
	id, err := domain.ParseUserID(claims.Subject)
	if err != nil {
		return domain.Principal{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return domain.Principal{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token role")
	}
	return domain.Principal{ID: id, Role: role}, nil
}
