package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phrazzld/cadence-api/internal/config"
	"github.com/phrazzld/cadence-api/internal/generation"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

const defaultRevokeURL = "https://oauth2.googleapis.com/revoke"

// Scopes requested during authorization.
var Scopes = []string{yt.YoutubeUploadScope, yt.YoutubeReadonlyScope}

// Token is the result of a code exchange or a refresh.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scope        string
}

// Channel identifies the connected channel.
type Channel struct {
	ID    string
	Title string
}

// Client wraps the OAuth2 configuration and the Data API.
type Client struct {
	oauth       *oauth2.Config
	httpClient  *http.Client
	revokeURL   string
	apiEndpoint string
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the OAuth2 endpoint.
func WithEndpoint(e oauth2.Endpoint) Option {
	return func(c *Client) { c.oauth.Endpoint = e }
}

// WithRevokeURL overrides the token revocation URL.
func WithRevokeURL(u string) Option {
	return func(c *Client) { c.revokeURL = u }
}

// WithAPIEndpoint overrides the Data API base path.
func WithAPIEndpoint(u string) Option {
	return func(c *Client) { c.apiEndpoint = u }
}

// WithHTTPClient sets the client used for token and revoke calls.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient creates a Client from cfg.
func NewClient(cfg config.YoutubeConfig, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint:     google.Endpoint,
		},
		httpClient: &http.Client{Timeout: 15 * time.Second},
		revokeURL:  defaultRevokeURL,
		logger:     logger.With(slog.String("component", "youtube_client")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthCodeURL returns the consent URL carrying state. Offline access with
// forced consent makes the provider return a refresh token every time.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens.
func (c *Client) Exchange(ctx context.Context, code string) (*Token, error) {
	tok, err := c.oauth.Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return nil, classifyTokenError("exchange", err)
	}
	return toToken(tok), nil
}

// Refresh obtains a new access token from refreshToken. The returned token
// keeps refreshToken unless the provider rotated it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", generation.ErrAuthentication)
	}
	src := c.oauth.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyTokenError("refresh", err)
	}
	out := toToken(tok)
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	return out, nil
}

// Revoke invalidates token at the provider.
func (c *Client) Revoke(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revokeURL,
		strings.NewReader(url.Values{"token": {token}}.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: revoke: %v", generation.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke returned status %d", resp.StatusCode)
	}
	return nil
}

// Channel returns the channel owned by the access token's user.
func (c *Client) Channel(ctx context.Context, accessToken string) (*Channel, error) {
	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})),
	}
	if c.apiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(c.apiEndpoint))
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}

	resp, err := svc.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: channel lookup: %v", generation.ErrAuthentication, err)
		}
		return nil, fmt.Errorf("%w: channel lookup: %v", generation.ErrNetwork, err)
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}
	ch := resp.Items[0]
	out := &Channel{ID: ch.Id}
	if ch.Snippet != nil {
		out.Title = ch.Snippet.Title
	}
	return out, nil
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func toToken(tok *oauth2.Token) *Token {
	out := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		out.Scope = scope
	}
	return out
}

// classifyTokenError maps token endpoint failures onto the provider error
// taxonomy. Any 4xx from the token endpoint means the grant is unusable.
func classifyTokenError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		switch code := re.Response.StatusCode; {
		case code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s: %v", generation.ErrRateLimited, op, err)
		case code >= 400 && code < 500:
			return fmt.Errorf("%w: %s: %v", generation.ErrAuthentication, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %v", generation.ErrNetwork, op, err)
}
