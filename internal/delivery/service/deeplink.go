package service

import (
	"net/url"
	"strings"

	"cardgate/internal/delivery/models"
)

const actionProgram = "program"

// LinkBuilder renders native deep links and the web fallback for a token.
type LinkBuilder struct {
	scheme  string
	baseURL string
}

func NewLinkBuilder(scheme, baseURL string) LinkBuilder {
	return LinkBuilder{
		scheme:  strings.TrimSuffix(scheme, "://"),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Redirect builds e.g. cardgate://program?action=program&recipient_handle=alice&token=T.
func (b LinkBuilder) Redirect(recipientHandle, token string) *models.Redirect {
	params := models.DeepLinkParams{
		RecipientHandle: recipientHandle,
		Token:           token,
		Action:          actionProgram,
	}
	query := url.Values{}
	query.Set("recipient_handle", params.RecipientHandle)
	query.Set("token", params.Token)
	query.Set("action", params.Action)
	link := url.URL{Scheme: b.scheme, Host: actionProgram, RawQuery: query.Encode()}

	return &models.Redirect{
		Link: models.DeepLink{
			Scheme: b.scheme,
			Params: params,
			URL:    link.String(),
		},
		FallbackURL: b.FallbackURL(token),
	}
}

// FallbackURL is the web view that always returns the payload.
func (b LinkBuilder) FallbackURL(token string) string {
	return b.baseURL + "/api/program_data/" + url.PathEscape(token) + "?view=web"
}
