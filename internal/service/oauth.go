package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/generation"
	"github.com/phrazzld/cadence-api/internal/platform/logger"
	"github.com/phrazzld/cadence-api/internal/platform/youtube"
	"github.com/phrazzld/cadence-api/internal/redact"
	"github.com/phrazzld/cadence-api/internal/store"
	"golang.org/x/sync/singleflight"
)

const (
	// HandshakeTTL is how long an authorization state token stays valid.
	HandshakeTTL = 10 * time.Minute

	// tokenExpirySkew treats access tokens this close to expiry as expired.
	tokenExpirySkew = time.Minute

	// providerCancelled is the error value the consent screen returns when
	// the user declines.
	providerCancelled = "access_denied"
)

// AuthOutcome is the result of an authorization callback.
type AuthOutcome string

// Authorization outcomes, in the order the callback checks them.
const (
	AuthCancelled    AuthOutcome = "cancelled"
	AuthInvalidState AuthOutcome = "invalid_state"
	AuthExpired      AuthOutcome = "expired"
	AuthError        AuthOutcome = "error"
	AuthSuccess      AuthOutcome = "success"
)

// Authorization callback errors.
var (
	ErrAuthorizationCancelled = errors.New("authorization cancelled by user")
	ErrInvalidState           = errors.New("authorization state mismatch")
	ErrStateExpired           = errors.New("authorization state expired")
)

// HandshakeState is the single-use CSRF token of one authorization
// handshake. The caller keeps it in the user's session and deletes it when
// the callback arrives, whatever the outcome.
type HandshakeState struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the state is no longer usable at now.
func (h HandshakeState) Expired(now time.Time) bool {
	return now.After(h.ExpiresAt)
}

// Matches compares token against the stored one in constant time.
func (h HandshakeState) Matches(token string) bool {
	if h.Token == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(h.Token), []byte(token)) == 1
}

// CallbackParams are the query parameters of the provider redirect.
type CallbackParams struct {
	Code  string
	State string
	Error string
}

// Connection describes a user's video platform connection.
type Connection struct {
	Connected    bool      `json:"connected"`
	ChannelID    string    `json:"channel_id,omitempty"`
	ChannelTitle string    `json:"channel_title,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// OAuthProvider is the video platform's OAuth and channel API.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*youtube.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*youtube.Token, error)
	Revoke(ctx context.Context, token string) error
	Channel(ctx context.Context, accessToken string) (*youtube.Channel, error)
}

// OAuthManager runs the authorization handshake and keeps stored
// credentials usable.
type OAuthManager struct {
	credentials store.CredentialStore
	provider    OAuthProvider
	refreshes   singleflight.Group
	now         func() time.Time
	logger      *slog.Logger
}

// NewOAuthManager creates an OAuthManager.
func NewOAuthManager(credentials store.CredentialStore, provider OAuthProvider, logger *slog.Logger) (*OAuthManager, error) {
	if credentials == nil {
		return nil, &ServiceError{Operation: "create_oauth_manager", Message: "credential store cannot be nil"}
	}
	if provider == nil {
		return nil, &ServiceError{Operation: "create_oauth_manager", Message: "oauth provider cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OAuthManager{
		credentials: credentials,
		provider:    provider,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger.With("component", "oauth_manager"),
	}, nil
}

// BeginAuthorization creates a fresh handshake state and the consent URL
// carrying it.
func (m *OAuthManager) BeginAuthorization() (HandshakeState, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return HandshakeState{}, "", NewServiceError("begin_authorization", "failed to generate state", err)
	}
	state := HandshakeState{
		Token:     base64.RawURLEncoding.EncodeToString(buf),
		ExpiresAt: m.now().Add(HandshakeTTL),
	}
	return state, m.provider.AuthCodeURL(state.Token), nil
}

// CompleteAuthorization validates the callback against the stored state and,
// on success, exchanges the code and stores the credential. A nil stored
// state is treated as a mismatch.
func (m *OAuthManager) CompleteAuthorization(
	ctx context.Context,
	userID uuid.UUID,
	stored *HandshakeState,
	params CallbackParams,
) (AuthOutcome, error) {
	log := logger.FromContextOrDefault(ctx, m.logger).With("user_id", userID)

	if params.Error == providerCancelled {
		log.Info("authorization cancelled")
		return AuthCancelled, ErrAuthorizationCancelled
	}
	if stored == nil || !stored.Matches(params.State) {
		log.Warn("authorization state mismatch")
		return AuthInvalidState, ErrInvalidState
	}
	if stored.Expired(m.now()) {
		log.Info("authorization state expired", "expired_at", stored.ExpiresAt)
		return AuthExpired, ErrStateExpired
	}
	if params.Error != "" || params.Code == "" {
		log.Warn("authorization failed at provider", "provider_error", params.Error)
		return AuthError, fmt.Errorf("%w: provider returned %q", generation.ErrAuthentication, params.Error)
	}

	tok, err := m.provider.Exchange(ctx, params.Code)
	if err != nil {
		log.Error("code exchange failed", "error", redact.Error(err))
		return AuthError, NewServiceError("complete_authorization", "code exchange failed", err)
	}

	cred := &domain.YoutubeCredential{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		Scope:        tok.Scope,
	}
	if ch, err := m.provider.Channel(ctx, tok.AccessToken); err != nil {
		log.Warn("channel lookup failed", "error", redact.Error(err))
	} else if ch != nil {
		cred.ChannelID, cred.ChannelTitle = ch.ID, ch.Title
	}

	if err := m.credentials.Upsert(ctx, cred); err != nil {
		log.Error("failed to store credential", "error", redact.Error(err))
		return AuthError, NewServiceError("complete_authorization", "failed to store credential", err)
	}
	log.Info("youtube account connected", "channel_id", cred.ChannelID)
	return AuthSuccess, nil
}

// AccessToken returns a usable access token, refreshing it first when it is
// expired. Concurrent callers for one user share a single refresh. A
// rejected refresh removes the credential and returns
// ErrReauthorizationRequired.
func (m *OAuthManager) AccessToken(ctx context.Context, userID uuid.UUID) (string, error) {
	cred, err := m.credentials.Get(ctx, userID)
	if err != nil {
		return "", NewServiceError("access_token", "failed to load credential", err)
	}
	if !cred.ExpiredAt(m.now(), tokenExpirySkew) {
		return cred.AccessToken, nil
	}

	v, err, _ := m.refreshes.Do(userID.String(), func() (any, error) {
		return m.refresh(ctx, userID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *OAuthManager) refresh(ctx context.Context, userID uuid.UUID) (string, error) {
	log := logger.FromContextOrDefault(ctx, m.logger).With("user_id", userID)

	cred, err := m.credentials.Get(ctx, userID)
	if err != nil {
		return "", NewServiceError("refresh_token", "failed to load credential", err)
	}
	if !cred.ExpiredAt(m.now(), tokenExpirySkew) {
		return cred.AccessToken, nil
	}

	tok, err := m.provider.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		if !errors.Is(err, generation.ErrAuthentication) {
			log.Warn("token refresh failed", "error", redact.Error(err))
			return "", NewServiceError("refresh_token", "token refresh failed", err)
		}
		log.Warn("token refresh rejected, credential removed", "error", redact.Error(err))
		if derr := m.credentials.Delete(ctx, userID); derr != nil {
			log.Error("failed to remove rejected credential", "error", redact.Error(derr))
		}
		return "", ErrReauthorizationRequired
	}

	cred.AccessToken = tok.AccessToken
	cred.RefreshToken = tok.RefreshToken
	cred.ExpiresAt = tok.Expiry
	if tok.Scope != "" {
		cred.Scope = tok.Scope
	}
	if err := m.credentials.Upsert(ctx, cred); err != nil {
		return "", NewServiceError("refresh_token", "failed to store refreshed credential", err)
	}
	log.Info("access token refreshed", "expires_at", cred.ExpiresAt)
	return cred.AccessToken, nil
}

// Connection reports the user's connection, refreshing the token and the
// channel details when connected.
func (m *OAuthManager) Connection(ctx context.Context, userID uuid.UUID) (*Connection, error) {
	token, err := m.AccessToken(ctx, userID)
	switch {
	case errors.Is(err, ErrNotConnected), errors.Is(err, ErrReauthorizationRequired):
		return &Connection{Connected: false}, nil
	case err != nil:
		return nil, err
	}

	cred, err := m.credentials.Get(ctx, userID)
	if err != nil {
		return nil, NewServiceError("connection", "failed to load credential", err)
	}

	if ch, err := m.provider.Channel(ctx, token); err != nil {
		m.logger.Warn("channel lookup failed", "user_id", userID, "error", redact.Error(err))
	} else if ch != nil && (ch.ID != cred.ChannelID || ch.Title != cred.ChannelTitle) {
		cred.ChannelID, cred.ChannelTitle = ch.ID, ch.Title
		if err := m.credentials.Upsert(ctx, cred); err != nil {
			m.logger.Warn("failed to store channel details", "user_id", userID, "error", redact.Error(err))
		}
	}

	return &Connection{
		Connected:    true,
		ChannelID:    cred.ChannelID,
		ChannelTitle: cred.ChannelTitle,
		Scope:        cred.Scope,
		ExpiresAt:    cred.ExpiresAt,
	}, nil
}

// Disconnect revokes the stored grant at the provider, best effort, and
// deletes the credential.
func (m *OAuthManager) Disconnect(ctx context.Context, userID uuid.UUID) error {
	cred, err := m.credentials.Get(ctx, userID)
	if err != nil {
		return NewServiceError("disconnect", "failed to load credential", err)
	}

	token := cred.RefreshToken
	if token == "" {
		token = cred.AccessToken
	}
	if err := m.provider.Revoke(ctx, token); err != nil {
		m.logger.Warn("token revocation failed", "user_id", userID, "error", redact.Error(err))
	}

	if err := m.credentials.Delete(ctx, userID); err != nil {
		return NewServiceError("disconnect", "failed to delete credential", err)
	}
	m.logger.Info("youtube account disconnected", "user_id", userID)
	return nil
}
