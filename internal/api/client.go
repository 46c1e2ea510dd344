package api

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/harvestagent/internal/logging"
)

// ErrClientClosed is returned when sending to a closed client.
var ErrClientClosed = errors.New("client connection closed")

const writeTimeout = 10 * time.Second

// Client is a websocket connection subscribed to harvest events.
type Client struct {
	ConnID      string
	UserAgent   string
	Socket      *websocket.Conn
	ConnectedAt time.Time

	// events limits delivery to these hook events; empty means all.
	events map[string]bool

	mu     sync.Mutex
	closed bool
}

// NewClient wraps a freshly upgraded connection subscribed to the given
// events, or to every event when none are given.
func NewClient(conn *websocket.Conn, userAgent string, events []string) *Client {
	c := &Client{
		ConnID:      uuid.New().String(),
		UserAgent:   userAgent,
		Socket:      conn,
		ConnectedAt: time.Now(),
	}
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			if c.events == nil {
				c.events = make(map[string]bool)
			}
			c.events[e] = true
		}
	}
	return c
}

// Wants reports whether the client subscribed to event.
func (c *Client) Wants(event string) bool {
	return len(c.events) == 0 || c.events[event]
}

// Send writes one frame under the client's write lock.
func (c *Client) Send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	_ = c.Socket.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.Socket.WriteJSON(frame)
}

// Close sends a close frame carrying reason, then drops the connection.
// Calling it twice is harmless.
func (c *Client) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = c.Socket.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.Socket.Close()
}

// ClientRegistry holds the event stream subscribers, keyed by ConnID.
type ClientRegistry struct {
	mu   sync.RWMutex
	subs map[string]*Client
	log  *logging.Logger
}

func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{subs: make(map[string]*Client), log: log}
}

func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	r.subs[c.ConnID] = c
	r.mu.Unlock()

	ev := r.log.Info().Str("connId", c.ConnID).Str("userAgent", c.UserAgent)
	if len(c.events) > 0 {
		ev = ev.Int("filters", len(c.events))
	}
	ev.Msg("event subscriber joined")
}

func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	c, ok := r.subs[connID]
	delete(r.subs, connID)
	r.mu.Unlock()

	if ok {
		r.log.Info().Str("connId", connID).
			Dur("connected", time.Since(c.ConnectedAt).Round(time.Second)).
			Msg("event subscriber left")
	}
}

func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	n := len(r.subs)
	r.mu.RUnlock()
	return n
}

// Broadcast encodes the event once and delivers it to every subscriber
// that wants it, returning how many received it. A failed send is logged
// and the subscriber is left for its read loop to reap.
func (r *ClientRegistry) Broadcast(event string, payload any, seq int64) int {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		r.log.Warn().Err(err).Str("event", event).Msg("encoding broadcast")
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	sent := 0
	for id, c := range r.subs {
		if !c.Wants(event) {
			continue
		}
		if err := c.Send(f); err != nil {
			r.log.Debug().Err(err).Str("connId", id).Str("event", event).Msg("dropping event for subscriber")
			continue
		}
		sent++
	}
	return sent
}

// CloseAll disconnects every subscriber with reason.
func (r *ClientRegistry) CloseAll(reason string) {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]*Client)
	r.mu.Unlock()

	for _, c := range subs {
		_ = c.Close(reason)
	}
}
