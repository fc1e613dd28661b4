package service

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkBuilder_Redirect(t *testing.T) {
	b := NewLinkBuilder("cardgate://", "https://cards.example.test/")
	r := b.Redirect("alice smith", "tok_abc-123")

	assert.Equal(t, "cardgate", r.Link.Scheme)
	assert.Equal(t, "program", r.Link.Params.Action)
	assert.Equal(t, "https://cards.example.test/api/program_data/tok_abc-123?view=web", r.FallbackURL)

	u, err := url.Parse(r.Link.URL)
	require.NoError(t, err)
	assert.Equal(t, "cardgate", u.Scheme)
	assert.Equal(t, "program", u.Host)
	assert.Equal(t, "alice smith", u.Query().Get("recipient_handle"))
	assert.Equal(t, "tok_abc-123", u.Query().Get("token"))
	assert.Equal(t, "program", u.Query().Get("action"))
}
