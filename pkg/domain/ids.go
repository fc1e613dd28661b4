// Package domain holds the primitives shared by every module: typed
// identifiers and the principal role. Parsing happens once at the trust
// boundary so services never handle raw strings.
package domain

import (
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "cardgate/pkg/domain-errors"
)

// UserID identifies a principal (issuer or recipient).
type UserID uuid.UUID

// ProgramID identifies a card program.
type ProgramID uuid.UUID

// DistributionID identifies a distribution row. It is never the access token.
type DistributionID uuid.UUID

// maxIDLength bounds input before it reaches the UUID parser. The longest
// accepted form is the braced/urn variant.
const maxIDLength = 45

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIDLength || !utf8.ValidString(s) {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	return parsed, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

func ParseProgramID(s string) (ProgramID, error) {
	u, err := parseUUID(s, "program id")
	return ProgramID(u), err
}

func ParseDistributionID(s string) (DistributionID, error) {
	u, err := parseUUID(s, "distribution id")
	return DistributionID(u), err
}

func NewUserID() UserID                 { return UserID(uuid.New()) }
func NewProgramID() ProgramID           { return ProgramID(uuid.New()) }
func NewDistributionID() DistributionID { return DistributionID(uuid.New()) }

func (id UserID) String() string { return uuid.UUID(id).String() }
func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id ProgramID) String() string { return uuid.UUID(id).String() }
func (id ProgramID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id ProgramID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *ProgramID) UnmarshalText(b []byte) error {
	parsed, err := ParseProgramID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id DistributionID) String() string { return uuid.UUID(id).String() }
func (id DistributionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id DistributionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *DistributionID) UnmarshalText(b []byte) error {
	parsed, err := ParseDistributionID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
