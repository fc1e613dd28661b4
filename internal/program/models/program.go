package models

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"cardgate/pkg/domain"
	dErrors "cardgate/pkg/domain-errors"
)

const (
	MaxNameLength = 100
	// MaxPayloadBytes bounds a program's opaque card data.
	MaxPayloadBytes = 64 << 10
)

// Program is an issuer-owned card payload. Everything except Active is
// immutable after creation.
type Program struct {
	ID          domain.ProgramID `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	OwnerID     domain.UserID    `json:"owner_id"`
	Payload     json.RawMessage  `json:"payload"`
	Active      bool             `json:"active"`
	CreatedAt   time.Time        `json:"created_at"`
}

// NewProgram checks structural invariants. Payload shape is validated by the
// service against the payload schema.
func NewProgram(id domain.ProgramID, owner domain.UserID, name, description string, payload json.RawMessage, now time.Time) (*Program, error) {
	if id.IsNil() || owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "program id and owner are required")
	}
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "name must be 1-100 characters")
	}
	if len(payload) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "payload is required")
	}
	return &Program{
		ID:          id,
		Name:        name,
		Description: description,
		OwnerID:     owner,
		Payload:     payload,
		Active:      true,
		CreatedAt:   now,
	}, nil
}

func (p *Program) OwnedBy(id domain.UserID) bool {
	return p.OwnerID == id
}

type CreateProgramRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Payload     json.RawMessage `json:"payload"`
}

func (r *CreateProgramRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
}

func (r *CreateProgramRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if utf8.RuneCountInString(r.Name) > MaxNameLength {
		return dErrors.New(dErrors.CodeValidation, "name must be at most 100 characters")
	}
	if len(r.Payload) == 0 {
		return dErrors.New(dErrors.CodeValidation, "payload is required")
	}
	if len(r.Payload) > MaxPayloadBytes {
		return dErrors.New(dErrors.CodeValidation, "payload is too large")
	}
	return nil
}
