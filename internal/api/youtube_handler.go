package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/api/shared"
	"github.com/phrazzld/cadence-api/internal/platform/logger"
	"github.com/phrazzld/cadence-api/internal/redact"
	"github.com/phrazzld/cadence-api/internal/service"
	"github.com/phrazzld/cadence-api/internal/service/auth"
)

const (
	// StateCookieName holds the signed OAuth handshake between the authorize
	// call and the provider callback.
	StateCookieName = "cadence_oauth_state"

	stateCookiePath = "/api/youtube"

	// stateCookieLifetime outlives the handshake so an expired handshake is
	// reported as expired instead of as a missing state.
	stateCookieLifetime = time.Hour

	// outcomeParam is the query parameter carrying the callback outcome on
	// the return redirect.
	outcomeParam = "youtube"
)

// YoutubeConnector runs the YouTube OAuth handshake and manages the stored
// connection.
type YoutubeConnector interface {
	BeginAuthorization() (service.HandshakeState, string, error)
	CompleteAuthorization(
		ctx context.Context,
		userID uuid.UUID,
		stored *service.HandshakeState,
		params service.CallbackParams,
	) (service.AuthOutcome, error)
	Connection(ctx context.Context, userID uuid.UUID) (*service.Connection, error)
	Disconnect(ctx context.Context, userID uuid.UUID) error
}

// StateCookieSigner seals the handshake state into a cookie value.
type StateCookieSigner interface {
	Sign(c auth.StateClaims) (string, error)
	Parse(value string) (*auth.StateClaims, error)
}

// StateLedger accepts each handshake token once until it expires.
type StateLedger interface {
	Consume(ctx context.Context, token string, expiresAt time.Time) (bool, error)
}

// YoutubeHandlerConfig configures the callback redirect and the state cookie.
type YoutubeHandlerConfig struct {
	// ReturnURL is where the browser lands after the callback.
	ReturnURL string
	// SecureCookie marks the state cookie Secure.
	SecureCookie bool
}

// YoutubeHandler handles the YouTube connection endpoints.
type YoutubeHandler struct {
	connector YoutubeConnector
	signer    StateCookieSigner
	ledger    StateLedger
	cfg       YoutubeHandlerConfig
	logger    *slog.Logger
}

// NewYoutubeHandler creates a new YoutubeHandler.
func NewYoutubeHandler(
	connector YoutubeConnector,
	signer StateCookieSigner,
	ledger StateLedger,
	cfg YoutubeHandlerConfig,
	logger *slog.Logger,
) *YoutubeHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for YoutubeHandler")
	}
	return &YoutubeHandler{
		connector: connector,
		signer:    signer,
		ledger:    ledger,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "youtube_handler")),
	}
}

// Authorize handles GET /api/youtube/authorize. It stores the signed
// handshake in a cookie and returns the consent URL.
func (h *YoutubeHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	state, consentURL, err := h.connector.BeginAuthorization()
	if err != nil {
		HandleAPIError(w, r, err, "Failed to start authorization")
		return
	}
	value, err := h.signer.Sign(auth.StateClaims{
		UserID:    userID,
		Token:     state.Token,
		ExpiresAt: state.ExpiresAt,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to start authorization")
		return
	}

	http.SetCookie(w, h.stateCookie(value, int(stateCookieLifetime.Seconds())))
	shared.RespondWithJSON(w, r, http.StatusOK, AuthorizeResponse{URL: consentURL})
}

// Callback handles GET /api/youtube/callback, the provider's browser
// redirect. The state cookie is cleared whatever the outcome, and the
// browser is sent back to the app with the outcome in the query. A state
// already presented once is treated as missing.
func (h *YoutubeHandler) Callback(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var (
		userID uuid.UUID
		stored *service.HandshakeState
	)
	if cookie, err := r.Cookie(StateCookieName); err == nil {
		claims, err := h.signer.Parse(cookie.Value)
		if err != nil {
			log.Warn("rejected oauth state cookie", slog.String("error", redact.Error(err)))
		} else if h.consumeState(r.Context(), log, claims) {
			userID = claims.UserID
			stored = &service.HandshakeState{Token: claims.Token, ExpiresAt: claims.ExpiresAt}
		}
	}
	http.SetCookie(w, h.stateCookie("", -1))

	query := r.URL.Query()
	outcome, err := h.connector.CompleteAuthorization(r.Context(), userID, stored, service.CallbackParams{
		Code:  query.Get("code"),
		State: query.Get("state"),
		Error: query.Get("error"),
	})
	if err != nil {
		log.Info("youtube authorization did not complete",
			slog.String("outcome", string(outcome)),
			slog.String("error", redact.Error(err)))
	}

	http.Redirect(w, r, h.returnURL(outcome), http.StatusFound)
}

// GetConnection handles GET /api/youtube.
func (h *YoutubeHandler) GetConnection(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	conn, err := h.connector.Connection(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load YouTube connection")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, conn)
}

// Disconnect handles DELETE /api/youtube.
func (h *YoutubeHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	if err := h.connector.Disconnect(r.Context(), userID); err != nil {
		HandleAPIError(w, r, err, "Failed to disconnect YouTube account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *YoutubeHandler) consumeState(ctx context.Context, log *slog.Logger, claims *auth.StateClaims) bool {
	first, err := h.ledger.Consume(ctx, claims.Token, claims.ExpiresAt)
	if err != nil {
		log.Error("failed to check oauth state reuse", slog.String("error", redact.Error(err)))
		return false
	}
	if !first {
		log.Warn("rejected replayed oauth state", slog.String("user_id", claims.UserID.String()))
	}
	return first
}

func (h *YoutubeHandler) stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     StateCookieName,
		Value:    value,
		Path:     stateCookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *YoutubeHandler) returnURL(outcome service.AuthOutcome) string {
	u, err := url.Parse(h.cfg.ReturnURL)
	if err != nil {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	q.Set(outcomeParam, string(outcome))
	u.RawQuery = q.Encode()
	return u.String()
}
