package models

import "encoding/json"

// ClientHint is what the caller tells us about its device.
type ClientHint struct {
	UserAgent string
	// MobileHint is the raw Sec-CH-UA-Mobile header value.
	MobileHint string
	// ForceWeb skips the native redirect, e.g. the fallback web view itself.
	ForceWeb bool
}

type Kind string

const (
	KindPayload  Kind = "payload"
	KindRedirect Kind = "redirect"
)

// Result is either a Payload or a Redirect, selected by Kind.
type Result struct {
	Kind     Kind
	Payload  *Payload
	Redirect *Redirect
}

type Payload struct {
	ProgramName string          `json:"program_name"`
	SectorData  json.RawMessage `json:"sector_data"`
	// Timestamp is server time in RFC 3339.
	Timestamp string `json:"timestamp"`
}

// Redirect sends a mobile client to its native handler first.
type Redirect struct {
	Link        DeepLink `json:"redirect"`
	FallbackURL string   `json:"fallback_url"`
}

type DeepLink struct {
	Scheme string         `json:"scheme"`
	Params DeepLinkParams `json:"params"`
	URL    string         `json:"url"`
}

type DeepLinkParams struct {
	RecipientHandle string `json:"recipient_handle"`
	Token           string `json:"token"`
	Action          string `json:"action"`
}
