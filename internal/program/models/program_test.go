package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardgate/pkg/domain"
	dErrors "cardgate/pkg/domain-errors"
)

func TestNewProgram(t *testing.T) {
	owner := domain.NewUserID()
	payload := json.RawMessage(`{"sector_0":"00ff"}`)

	p, err := NewProgram(domain.NewProgramID(), owner, "Loyalty", "", payload, time.Now())
	require.NoError(t, err)
	assert.True(t, p.Active)
	assert.True(t, p.OwnedBy(owner))
	assert.False(t, p.OwnedBy(domain.NewUserID()))

	_, err = NewProgram(domain.NewProgramID(), owner, strings.Repeat("n", 101), "", payload, time.Now())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestCreateProgramRequest_Validate(t *testing.T) {
	req := CreateProgramRequest{Name: "  Transit  ", Payload: json.RawMessage(`[]`)}
	req.Normalize()
	require.NoError(t, req.Validate())
	assert.Equal(t, "Transit", req.Name)

	req.Name = ""
	assert.True(t, dErrors.HasCode(req.Validate(), dErrors.CodeValidation))

	big := CreateProgramRequest{Name: "x", Payload: json.RawMessage(`"` + strings.Repeat("a", MaxPayloadBytes) + `"`)}
	assert.True(t, dErrors.HasCode(big.Validate(), dErrors.CodeValidation))
}
