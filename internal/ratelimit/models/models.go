package models

import (
	"fmt"
	"time"
)

// EndpointClass groups routes that share a budget.
type EndpointClass string

const (
	// ClassToken covers the unauthenticated program_data endpoints.
	ClassToken EndpointClass = "token"
	// ClassAuth covers login and registration.
	ClassAuth EndpointClass = "auth"
)

// Policy is the request budget for one class.
type Policy struct {
	Requests int
	Window   time.Duration
}

// Result is the outcome of one limiter check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds
}

// Key scopes a counter to a class and client identifier.
func Key(class EndpointClass, identifier string) string {
	return fmt.Sprintf("ratelimit:%s:%s", class, identifier)
}

// RateLimitExceededResponse is written with 429.
type RateLimitExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"error_description"`
	RetryAfter int    `json:"retry_after"`
}
