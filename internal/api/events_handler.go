package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/phrazzld/circles-api/internal/domain"
	"github.com/phrazzld/circles-api/internal/events"
	"github.com/phrazzld/circles-api/internal/platform/logger"
)

const maxClientMessageBytes = 512

// EventSource is the subscription side of the circle event broadcaster.
type EventSource interface {
	Subscribe(observer events.Observer) (events.SubscriptionID, error)
	Unsubscribe(id events.SubscriptionID) bool
}

// EventsHandler streams circle events to WebSocket clients.
type EventsHandler struct {
	source       EventSource
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       *slog.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(source EventSource, writeTimeout, pingInterval time.Duration, log *slog.Logger) *EventsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &EventsHandler{
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Credentials travel as bearer tokens, never cookies.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		logger:       log.With(slog.String("component", "events_handler")),
		closing:      make(chan struct{}),
	}
}

// Shutdown closes every open stream with a going-away frame. Hijacked
// connections are not tracked by http.Server, so register it with
// RegisterOnShutdown.
func (h *EventsHandler) Shutdown() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// Stream handles GET /api/lending-circles/events. The optional circle query
// parameter restricts the stream to one circle.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var circleID uuid.UUID
	if raw := r.URL.Query().Get("circle"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			HandleAPIError(w, r, domain.NewValidationError("circle", "has invalid format", domain.ErrInvalidID), "")
			return
		}
		circleID = id
	}

	log := logger.FromContextOrDefault(r.Context(), h.logger).With(slog.String("user_id", userID.String()))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = conn.Close() }()

	observer := &wsObserver{conn: conn, circleID: circleID, writeTimeout: h.writeTimeout}
	subID, err := h.source.Subscribe(observer)
	if err != nil {
		log.Warn("event subscription refused", slog.String("error", err.Error()))
		deadline := time.Now().Add(h.writeTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		return
	}
	defer h.source.Unsubscribe(subID)

	log.Info("event stream opened", slog.Uint64("subscription_id", uint64(subID)))

	done := make(chan struct{})
	defer close(done)
	go h.pingLoop(conn, done)

	h.readLoop(conn)
	log.Info("event stream closed", slog.Uint64("subscription_id", uint64(subID)))
}

// readLoop discards client messages and returns once the peer goes away or
// misses two pings.
func (h *EventsHandler) readLoop(conn *websocket.Conn) {
	pongWait := 2 * h.pingInterval
	conn.SetReadLimit(maxClientMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *EventsHandler) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-h.closing:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.writeTimeout))
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		}
	}
}

// wsObserver writes events to one WebSocket connection.
type wsObserver struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	circleID     uuid.UUID
	writeTimeout time.Duration
}

var _ events.Observer = (*wsObserver)(nil)

// Notify implements events.Observer.
func (o *wsObserver) Notify(ctx context.Context, event events.CircleEvent) error {
	if o.circleID != uuid.Nil && (event.Circle == nil || event.Circle.ID != o.circleID) {
		return nil
	}

	deadline := time.Now().Add(o.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return o.conn.WriteJSON(event)
}
