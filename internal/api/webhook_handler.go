package api

import (
	"context"
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"

	"github.com/phrazzld/cadence-api/internal/api/shared"
	"github.com/phrazzld/cadence-api/internal/generation"
	"github.com/phrazzld/cadence-api/internal/platform/logger"
	"github.com/phrazzld/cadence-api/internal/redact"
	"github.com/phrazzld/cadence-api/internal/service"
)

// MaxWebhookBytes caps provider callback bodies.
const MaxWebhookBytes = 1 << 20

// webhookTokenParam carries the shared secret on provider callbacks.
const webhookTokenParam = "token"

// EventReconciler applies provider task events.
type EventReconciler interface {
	Apply(ctx context.Context, ev generation.TaskEvent) (service.Outcome, error)
}

// CallbackParser converts a provider callback body into a TaskEvent.
type CallbackParser func(body []byte) (*generation.TaskEvent, error)

// WebhookHandler receives provider task callbacks.
type WebhookHandler struct {
	secret     []byte
	parse      CallbackParser
	reconciler EventReconciler
	logger     *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(secret string, parse CallbackParser, reconciler EventReconciler, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for WebhookHandler")
	}
	if secret == "" {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("webhook secret cannot be empty")
	}
	return &WebhookHandler{
		secret:     []byte(secret),
		parse:      parse,
		reconciler: reconciler,
		logger:     logger.With(slog.String("component", "webhook_handler")),
	}
}

// ProviderCallback handles POST /api/webhooks/provider. Once the shared
// secret checks out the provider always gets 200; events that cannot be
// parsed or applied are logged and left for the poller.
func (h *WebhookHandler) ProviderCallback(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	token := r.URL.Query().Get(webhookTokenParam)
	if subtle.ConstantTimeCompare([]byte(token), h.secret) != 1 {
		shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Invalid webhook token", nil,
			shared.WithElevatedLogLevel(), shared.WithErrorCode(CodeUnauthorized))
		return
	}

	ack := StatusResponse{Status: "received"}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBytes))
	if err != nil {
		log.Warn("failed to read provider callback", slog.String("error", redact.Error(err)))
		shared.RespondWithJSON(w, r, http.StatusOK, ack)
		return
	}

	ev, err := h.parse(body)
	if err != nil {
		log.Warn("discarding unparseable provider callback",
			slog.Int("bytes", len(body)),
			slog.String("error", redact.Error(err)))
		shared.RespondWithJSON(w, r, http.StatusOK, ack)
		return
	}

	outcome, err := h.reconciler.Apply(r.Context(), *ev)
	if err != nil {
		log.Error("failed to apply provider callback",
			slog.String("task_id", ev.TaskID),
			slog.String("error", redact.Error(err)))
	} else {
		log.Debug("provider callback applied",
			slog.String("task_id", ev.TaskID),
			slog.String("status", string(ev.Status)),
			slog.String("outcome", string(outcome)))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ack)
}
