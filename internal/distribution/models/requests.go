package models

import (
	"time"

	"cardgate/pkg/domain"
	dErrors "cardgate/pkg/domain-errors"
)

// MaxTTL caps issuer-supplied lifetimes.
const MaxTTL = 30 * 24 * time.Hour

type CreateDistributionRequest struct {
	ProgramID   string `json:"program_id"`
	RecipientID string `json:"recipient_id"`
	// TTLSeconds of zero selects DefaultTTL.
	TTLSeconds int64 `json:"ttl_seconds"`
}

// Parse validates the request and returns typed values.
func (r *CreateDistributionRequest) Parse() (domain.ProgramID, domain.UserID, time.Duration, error) {
	programID, err := domain.ParseProgramID(r.ProgramID)
	if err != nil {
		return domain.ProgramID{}, domain.UserID{}, 0, dErrors.New(dErrors.CodeValidation, "program_id must be a valid id")
	}
	recipientID, err := domain.ParseUserID(r.RecipientID)
	if err != nil {
		return domain.ProgramID{}, domain.UserID{}, 0, dErrors.New(dErrors.CodeValidation, "recipient_id must be a valid id")
	}
	ttl, err := parseTTL(r.TTLSeconds)
	if err != nil {
		return domain.ProgramID{}, domain.UserID{}, 0, err
	}
	return programID, recipientID, ttl, nil
}

type RedistributeRequest struct {
	TTLSeconds int64 `json:"ttl_seconds"`
}

func (r *RedistributeRequest) TTL() (time.Duration, error) {
	return parseTTL(r.TTLSeconds)
}

func parseTTL(seconds int64) (time.Duration, error) {
	if seconds < 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "ttl_seconds must not be negative")
	}
	ttl := time.Duration(seconds) * time.Second
	if ttl > MaxTTL {
		return 0, dErrors.New(dErrors.CodeValidation, "ttl_seconds exceeds 30 days")
	}
	return ttl, nil
}

// Entry is a distribution joined with the names shown on dashboards.
type Entry struct {
	ID                domain.DistributionID `json:"id"`
	ProgramID         domain.ProgramID      `json:"program_id"`
	ProgramName       string                `json:"program_name"`
	RecipientID       domain.UserID         `json:"recipient_id"`
	RecipientUsername string                `json:"recipient_username"`
	IssuerID          domain.UserID         `json:"issuer_id"`
	State             State                 `json:"state"`
	ExpiresAt         time.Time             `json:"expires_at"`
	CreatedAt         time.Time             `json:"created_at"`
	LastAccessedAt    *time.Time            `json:"last_accessed_at,omitempty"`
	UsedAt            *time.Time            `json:"used_at,omitempty"`
}

// NewEntry projects d at now. Entries never carry the token.
func NewEntry(d *Distribution, programName, recipientUsername string, now time.Time) Entry {
	return Entry{
		ID:                d.ID,
		ProgramID:         d.ProgramID,
		ProgramName:       programName,
		RecipientID:       d.RecipientID,
		RecipientUsername: recipientUsername,
		IssuerID:          d.IssuerID,
		State:             d.State(now),
		ExpiresAt:         d.ExpiresAt,
		CreatedAt:         d.CreatedAt,
		LastAccessedAt:    d.LastAccessedAt,
		UsedAt:            d.UsedAt,
	}
}
