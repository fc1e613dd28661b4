package models

import (
	"time"

	"cardgate/pkg/domain"
	dErrors "cardgate/pkg/domain-errors"
)

// DefaultTTL applies when a distribution is created without an explicit ttl.
const DefaultTTL = 24 * time.Hour

// Status is the persisted part of a distribution's lifecycle. Fetched and
// Expired are derived, see State.
type Status string

const (
	StatusPending  Status = "pending"
	StatusConsumed Status = "consumed"
)

// State is the externally visible lifecycle position.
type State string

const (
	StatePending  State = "pending"
	StateFetched  State = "fetched"
	StateConsumed State = "consumed"
	StateExpired  State = "expired"
)

// Distribution grants one recipient one-time access to one program through an
// opaque token.
type Distribution struct {
	ID             domain.DistributionID
	ProgramID      domain.ProgramID
	RecipientID    domain.UserID
	IssuerID       domain.UserID
	Token          string
	Status         Status
	ExpiresAt      time.Time
	CreatedAt      time.Time
	LastAccessedAt *time.Time
	UsedAt         *time.Time
}

// NewDistribution builds a pending distribution. A negative ttl is allowed and
// yields a distribution that is already expired.
func NewDistribution(id domain.DistributionID, program domain.ProgramID, recipient, issuer domain.UserID, token string, ttl time.Duration, now time.Time) (*Distribution, error) {
	if id.IsNil() || program.IsNil() || recipient.IsNil() || issuer.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "distribution ids are required")
	}
	if token == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "token is required")
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Distribution{
		ID:          id,
		ProgramID:   program,
		RecipientID: recipient,
		IssuerID:    issuer,
		Token:       token,
		Status:      StatusPending,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}, nil
}

// State derives the lifecycle position at now. Consumption wins over expiry.
func (d *Distribution) State(now time.Time) State {
	switch {
	case d.Status == StatusConsumed:
		return StateConsumed
	case d.IsExpired(now):
		return StateExpired
	case d.LastAccessedAt != nil:
		return StateFetched
	default:
		return StatePending
	}
}

// IsExpired is strict: a distribution is still valid at exactly ExpiresAt.
func (d *Distribution) IsExpired(now time.Time) bool {
	return now.After(d.ExpiresAt)
}

// CheckDeliverable reports whether the payload may be handed out at now.
func CheckDeliverable(d *Distribution, now time.Time) error {
	if d.Status == StatusConsumed {
		return dErrors.New(dErrors.CodeAlreadyConsumed, "this link has already been used")
	}
	if d.IsExpired(now) {
		return dErrors.New(dErrors.CodeExpired, "this link has expired")
	}
	return nil
}
