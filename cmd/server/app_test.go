package main

import (
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/phrazzld/cadence-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookURL(t *testing.T) {
	t.Parallel()

	got := webhookURL(config.ProviderConfig{
		CallbackURL:   "https://api.example.com/api/webhooks/provider?source=music",
		WebhookSecret: "s3cret-value-0123",
	})

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/api/webhooks/provider", u.Path)
	assert.Equal(t, "music", u.Query().Get("source"))
	assert.Equal(t, "s3cret-value-0123", u.Query().Get("token"))
}

func TestOriginChecker(t *testing.T) {
	t.Parallel()

	assert.Nil(t, originChecker(nil))

	check := originChecker([]string{"https://app.example.com"})
	require.NotNil(t, check)

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"listed", "https://app.example.com", true},
		{"case insensitive", "HTTPS://APP.example.com", true},
		{"no origin header", "", true},
		{"other origin", "https://evil.example.com", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/realtime", nil)
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}
			assert.Equal(t, tc.want, check(r))
		})
	}
}
