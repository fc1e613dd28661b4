package domain

import dErrors "cardgate/pkg/domain-errors"

// Role is the principal's capability class. Issuers own programs and create
// distributions; recipients receive them.
type Role string

const (
	RoleIssuer    Role = "issuer"
	RoleRecipient Role = "recipient"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleIssuer, RoleRecipient:
		return Role(s), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role: "+s)
	}
}

func (r Role) String() string { return string(r) }

func (r Role) IsIssuer() bool { return r == RoleIssuer }

// Principal is the authenticated caller as seen by the core: nothing more than
// an identity and a role.
type Principal struct {
	ID   UserID
	Role Role
}
