package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/cadence-api/internal/api/shared"
	"github.com/phrazzld/cadence-api/internal/platform/logger"
	"github.com/phrazzld/cadence-api/internal/realtime"
	"github.com/phrazzld/cadence-api/internal/redact"
)

// MaxRealtimeTopics caps the topics one connection may subscribe to.
const MaxRealtimeTopics = 32

// TopicAuthorizer checks that a user may see a Content or one of its records.
type TopicAuthorizer interface {
	Owns(ctx context.Context, userID, contentID uuid.UUID) error
	OwnsRecord(ctx context.Context, userID, recordID uuid.UUID) error
}

// SubscriptionServer upgrades a request into a subscriber of topics.
type SubscriptionServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, topics []string) error
}

// RealtimeHandler serves the websocket subscription endpoint.
type RealtimeHandler struct {
	authorizer TopicAuthorizer
	server     SubscriptionServer
	logger     *slog.Logger
}

// NewRealtimeHandler creates a new RealtimeHandler.
func NewRealtimeHandler(authorizer TopicAuthorizer, server SubscriptionServer, logger *slog.Logger) *RealtimeHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for RealtimeHandler")
	}
	return &RealtimeHandler{
		authorizer: authorizer,
		server:     server,
		logger:     logger.With(slog.String("component", "realtime_handler")),
	}
}

// Subscribe handles GET /api/realtime?topics=a,b. Every topic must belong to
// the caller before the connection is upgraded.
func (h *RealtimeHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	topics := parseTopics(r)
	if len(topics) == 0 || len(topics) > MaxRealtimeTopics {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Between 1 and 32 topics are required")
		return
	}

	for _, topic := range topics {
		if err := h.authorize(r.Context(), userID, topic); err != nil {
			log.Warn("realtime subscription refused",
				slog.String("topic", topic),
				slog.String("error", redact.Error(err)))
			if errors.Is(err, realtime.ErrInvalidTopic) {
				shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Unknown topic", err,
					shared.WithErrorCode(CodeValidation))
				return
			}
			if MapErrorToStatusCode(err) == http.StatusInternalServerError {
				HandleAPIError(w, r, err, "Failed to authorize subscription")
				return
			}
			shared.RespondWithErrorAndLog(w, r, http.StatusForbidden, "Subscription is not allowed", err,
				shared.WithErrorCode(CodeForbidden))
			return
		}
	}

	if err := h.server.ServeWS(w, r, topics); err != nil {
		// The upgrader has already written the HTTP error.
		log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	log.Debug("realtime subscriber connected", slog.Int("topics", len(topics)))
}

func (h *RealtimeHandler) authorize(ctx context.Context, userID uuid.UUID, topic string) error {
	kind, id, err := realtime.ParseTopic(topic)
	if err != nil {
		return err
	}
	if kind == realtime.TopicRecord {
		return h.authorizer.OwnsRecord(ctx, userID, id)
	}
	return h.authorizer.Owns(ctx, userID, id)
}

// parseTopics accepts comma separated and repeated topics params and drops
// duplicates.
func parseTopics(r *http.Request) []string {
	seen := make(map[string]struct{})
	var topics []string
	for _, raw := range r.URL.Query()["topics"] {
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			topics = append(topics, t)
		}
	}
	return topics
}
