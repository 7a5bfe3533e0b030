package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxReadBytes   = 1024
	sendBufferSize = 64
)

// Publisher delivers a payload to every subscriber of topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Subscriber is one websocket connection and the topics it listens to.
type Subscriber struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	topics []string

	mu     sync.Mutex
	closed bool
}

// Hub tracks subscribers per topic and fans payloads out to them.
type Hub struct {
	mu       sync.RWMutex
	topics   map[string]map[*Subscriber]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

var _ Publisher = (*Hub)(nil)

// NewHub creates an empty hub. checkOrigin may be nil to use the gorilla
// same-origin default.
func NewHub(checkOrigin func(r *http.Request) bool, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		topics: make(map[string]map[*Subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger.With(slog.String("component", "realtime_hub")),
	}
}

// Publish implements Publisher. A subscriber whose buffer is full is
// dropped instead of blocking the publisher.
func (h *Hub) Publish(_ context.Context, topic string, payload []byte) error {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.topics[topic]))
	for s := range h.topics[topic] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		if !s.deliver(payload) {
			h.logger.Warn("subscriber too slow, disconnecting", slog.String("topic", topic))
			h.remove(s)
		}
	}
	return nil
}

// deliver queues payload without blocking. It reports false when the buffer
// is full.
func (s *Subscriber) deliver(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// SubscriberCount returns the number of subscribers of topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// ServeWS upgrades the request and subscribes the connection to topics.
// Topics must already be authorized by the caller.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, topics []string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	s := h.add(conn, topics)
	go s.writePump()
	go s.readPump()
	return nil
}

func (h *Hub) add(conn *websocket.Conn, topics []string) *Subscriber {
	s := &Subscriber{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		topics: topics,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range topics {
		if h.topics[t] == nil {
			h.topics[t] = make(map[*Subscriber]struct{})
		}
		h.topics[t][s] = struct{}{}
	}
	h.logger.Debug("subscriber added", slog.Int("topic_count", len(topics)))
	return s
}

func (h *Hub) remove(s *Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	h.mu.Lock()
	for _, t := range s.topics {
		delete(h.topics[t], s)
		if len(h.topics[t]) == 0 {
			delete(h.topics, t)
		}
	}
	h.mu.Unlock()
	close(s.send)
}

// readPump discards client frames; it exists to process control frames and
// notice disconnects.
func (s *Subscriber) readPump() {
	defer func() {
		s.hub.remove(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxReadBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.hub.logger.Debug("websocket read error", slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (s *Subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
