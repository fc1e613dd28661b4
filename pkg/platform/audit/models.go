package audit

import (
	"time"

	"cardgate/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers grants of sensitive payloads and their consumption.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers rejected access: bad tokens, replays, role violations.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. It is
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// UserID is the principal the event is about (issuer or recipient).
	UserID    domain.UserID
	Subject   string
	Action    string
	Decision  string
	Reason    string
	RequestID string
	// ActorID is set when the actor differs from UserID, e.g. an issuer
	// distributing to a recipient.
	ActorID string
}

type AuditEvent string

const (
	EventUserCreated  AuditEvent = "user_created"
	EventLoginFailed  AuditEvent = "login_failed"
	EventLoginSuccess AuditEvent = "login_succeeded"

	EventProgramCreated     AuditEvent = "program_created"
	EventProgramDeactivated AuditEvent = "program_deactivated"

	EventDistributionCreated AuditEvent = "distribution_created"
	EventProgramDelivered    AuditEvent = "program_delivered"
	EventDeliveryRedirected  AuditEvent = "delivery_redirected"
	EventDeliveryRejected    AuditEvent = "delivery_rejected"
	EventDistributionUsed    AuditEvent = "distribution_consumed"
	EventConfirmRejected     AuditEvent = "confirmation_rejected"

	EventRateLimitExceeded AuditEvent = "rate_limit_exceeded"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventUserCreated:         CategoryCompliance,
	EventDistributionCreated: CategoryCompliance,
	EventProgramDelivered:    CategoryCompliance,
	EventDistributionUsed:    CategoryCompliance,

	EventLoginFailed:       CategorySecurity,
	EventDeliveryRejected:  CategorySecurity,
	EventConfirmRejected:   CategorySecurity,
	EventRateLimitExceeded: CategorySecurity,

	EventLoginSuccess:       CategoryOperations,
	EventProgramCreated:     CategoryOperations,
	EventProgramDeactivated: CategoryOperations,
	EventDeliveryRedirected: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
