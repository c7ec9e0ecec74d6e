// Package realtime persists published events to the outbox and fans them out
// to WebSocket connections.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/campus-voting/internal/application"
	"github.com/example/campus-voting/internal/persistence"
)

const (
	defaultSendBuffer  = 64
	defaultReplayLimit = 500
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxInboundMessage  = 4096
)

// EventReplayTruncated follows a connect-time replay that hit the replay
// limit. Its payload carries the last replayed seq; clients resume from there
// through the events endpoint.
const EventReplayTruncated = "replay-truncated"

// Store is the outbox the hub appends to and replays from.
type Store interface {
	AppendEvent(ctx context.Context, event persistence.Event) (persistence.Event, error)
	ListEventsAfter(ctx context.Context, after int64, limit int) ([]persistence.Event, error)
	PruneEventsBefore(ctx context.Context, before time.Time) (int, error)
}

// Envelope is the wire shape of one event.
type Envelope struct {
	Seq       int64           `json:"seq"`
	Type      string          `json:"type"`
	Target    string          `json:"-"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Options tune a Hub. Zero values use defaults.
type Options struct {
	SendBuffer  int
	ReplayLimit int
	// CheckOrigin is passed to the upgrader; nil allows same-origin requests only.
	CheckOrigin func(r *http.Request) bool
	Now         func() time.Time
	Logger      *slog.Logger
}

// Hub implements application.Notifier and application.PresenceReporter.
type Hub struct {
	store       Store
	upgrader    websocket.Upgrader
	sendBuffer  int
	replayLimit int
	now         func() time.Time
	logger      *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub returns a hub writing to store. A nil store disables persistence and replay.
func NewHub(store Store, opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.ReplayLimit <= 0 {
		opts.ReplayLimit = defaultReplayLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Hub{
		store: store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.CheckOrigin,
		},
		sendBuffer:  opts.SendBuffer,
		replayLimit: opts.ReplayLimit,
		now:         opts.Now,
		logger:      opts.Logger.With("component", "realtime.Hub"),
		clients:     make(map[*client]struct{}),
	}
}

// Notify appends the notification to the outbox and delivers it to matching
// connections. Delivery happens even when the append fails; the append error
// is returned so the caller can log it.
func (h *Hub) Notify(ctx context.Context, n application.Notification) error {
	if n.Type == "" {
		return fmt.Errorf("event type is required")
	}
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", n.Type, err)
	}

	event := persistence.Event{Target: n.Target, Type: n.Type, Payload: payload, CreatedAt: h.now().UTC()}
	var appendErr error
	if h.store != nil {
		saved, err := h.store.AppendEvent(ctx, event)
		if err != nil {
			appendErr = fmt.Errorf("append %s event: %w", n.Type, err)
		} else {
			event = saved
		}
	}

	h.broadcast(toEnvelope(event))
	return appendErr
}

// EventsAfter returns persisted events with seq greater than after.
func (h *Hub) EventsAfter(ctx context.Context, after int64, limit int) ([]Envelope, error) {
	if h.store == nil {
		return []Envelope{}, nil
	}
	if limit <= 0 || limit > h.replayLimit {
		limit = h.replayLimit
	}
	events, err := h.store.ListEventsAfter(ctx, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list events after %d: %w", after, err)
	}
	out := make([]Envelope, 0, len(events))
	for _, event := range events {
		out = append(out, toEnvelope(event))
	}
	return out, nil
}

// Prune deletes outbox rows older than retention.
func (h *Hub) Prune(ctx context.Context, retention time.Duration) (int, error) {
	if h.store == nil || retention <= 0 {
		return 0, nil
	}
	return h.store.PruneEventsBefore(ctx, h.now().UTC().Add(-retention))
}

// RunJanitor prunes the outbox every interval until ctx is done.
func (h *Hub) RunJanitor(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 || retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := h.Prune(ctx, retention)
			if err != nil {
				h.logger.WarnContext(ctx, "event prune failed", "error", err)
				continue
			}
			if removed > 0 {
				h.logger.InfoContext(ctx, "events pruned", "removed", removed)
			}
		}
	}
}

// Presence counts live connections by kind and identity.
func (h *Hub) Presence() application.PresenceSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snapshot := application.PresenceSnapshot{ByIdentity: make(map[string]int)}
	seen := make(map[string]bool)
	for c := range h.clients {
		snapshot.Connections++
		snapshot.ByIdentity[c.identity]++
		if seen[c.identity] {
			continue
		}
		seen[c.identity] = true
		if c.kind == application.PrincipalAdmin {
			snapshot.Admins++
		} else {
			snapshot.Students++
		}
	}
	return snapshot
}

// Close disconnects every client. Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// ServeConn upgrades the request and streams events to principal until the
// connection ends. Admins replaying with after >= 0 first receive the stored
// events with larger sequence numbers.
func (h *Hub) ServeConn(w http.ResponseWriter, r *http.Request, principal application.Principal, after int64) error {
	identity := principal.Target()
	if identity == "" {
		return application.ErrUnauthorized
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket: %w", err)
	}

	c := &client{
		hub:      h,
		conn:     conn,
		kind:     principal.Kind,
		identity: identity,
		send:     make(chan Envelope, h.sendBuffer),
		done:     make(chan struct{}),
	}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return nil
	}

	logger := h.logger.With("identity", identity)
	logger.InfoContext(r.Context(), "socket connected")

	var replay []Envelope
	if principal.IsAdmin() && after >= 0 {
		replay, err = h.replay(r.Context(), after)
		if err != nil {
			logger.WarnContext(r.Context(), "event replay failed", "error", err)
			replay = nil
		}
	}

	go c.writeLoop(replay)
	c.readLoop()

	h.unregister(c)
	c.close()
	logger.InfoContext(r.Context(), "socket disconnected")
	return nil
}

// replay returns up to replayLimit events after the given seq. When more are
// stored, a replay-truncated marker is appended.
func (h *Hub) replay(ctx context.Context, after int64) ([]Envelope, error) {
	if h.store == nil {
		return nil, nil
	}
	events, err := h.store.ListEventsAfter(ctx, after, h.replayLimit+1)
	if err != nil {
		return nil, fmt.Errorf("list events after %d: %w", after, err)
	}
	truncated := len(events) > h.replayLimit
	if truncated {
		events = events[:h.replayLimit]
	}
	out := make([]Envelope, 0, len(events)+1)
	for _, event := range events {
		out = append(out, toEnvelope(event))
	}
	if truncated {
		last := events[len(events)-1].Seq
		payload, _ := json.Marshal(map[string]int64{"last_seq": last})
		out = append(out, Envelope{Type: EventReplayTruncated, Payload: payload, CreatedAt: h.now().UTC()})
	}
	return out, nil
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *Hub) broadcast(env Envelope) {
	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		if !c.wants(env) {
			continue
		}
		select {
		case c.send <- env:
		case <-c.done:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow socket", "identity", c.identity)
		h.unregister(c)
		c.close()
	}
}

func toEnvelope(event persistence.Event) Envelope {
	payload := json.RawMessage(event.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Envelope{Seq: event.Seq, Type: event.Type, Target: event.Target, Payload: payload, CreatedAt: event.CreatedAt}
}

var (
	_ application.Notifier         = (*Hub)(nil)
	_ application.PresenceReporter = (*Hub)(nil)
)
