package testutil

import (
	"net/http"

	"cardgate/pkg/domain"
	"cardgate/pkg/requestcontext"
)

// WithPrincipal attaches an authenticated principal to the request, as the
// auth middleware would.
func WithPrincipal(req *http.Request, id domain.UserID, role domain.Role) *http.Request {
	ctx := requestcontext.WithPrincipal(req.Context(), domain.Principal{ID: id, Role: role})
	return req.WithContext(ctx)
}

// AsIssuer attaches a fresh issuer principal and returns its ID.
func AsIssuer(req *http.Request) (*http.Request, domain.UserID) {
	id := domain.NewUserID()
	return WithPrincipal(req, id, domain.RoleIssuer), id
}

// AsRecipient attaches a fresh recipient principal and returns its ID.
func AsRecipient(req *http.Request) (*http.Request, domain.UserID) {
	id := domain.NewUserID()
	return WithPrincipal(req, id, domain.RoleRecipient), id
}

// WithClient sets the client IP and user agent the metadata middleware would record.
func WithClient(req *http.Request, ip, userAgent string) *http.Request {
	req.Header.Set("User-Agent", userAgent)
	ctx := requestcontext.WithClientMetadata(req.Context(), ip, userAgent)
	return req.WithContext(ctx)
}
