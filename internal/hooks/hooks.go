// Package hooks dispatches harvest lifecycle events to registered handlers.
// The API server relays them to websocket clients; tests use them to observe
// a harvest without reaching into the store.
package hooks

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/harvestagent/internal/logging"
)

// Event names.
const (
	EventInvokeStart     = "invoke_start"
	EventInvokeFinish    = "invoke_finish"
	EventHarvestStart    = "harvest_start"
	EventHarvestFinish   = "harvest_finish"
	EventRecordFetched   = "record_fetched"
	EventRecordCommitted = "record_committed"
	EventRecordError     = "record_error"
	EventServerStart     = "server_start"
	EventServerStop      = "server_stop"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventInvokeStart,
	EventInvokeFinish,
	EventHarvestStart,
	EventHarvestFinish,
	EventRecordFetched,
	EventRecordCommitted,
	EventRecordError,
	EventServerStart,
	EventServerStop,
}

// anyEvent is the key under which OnAny handlers are stored.
const anyEvent = "*"

// Payload carries event data to hook handlers.
type Payload struct {
	Event string         `json:"event"`
	Time  time.Time      `json:"time"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler reacts to one event. A returned error is logged and the
// remaining handlers still run.
type Handler func(ctx context.Context, p Payload) error

// Manager routes events to handlers registered by name. All methods are
// no-ops on a nil Manager, so components can be built without one.
type Manager struct {
	mu   sync.RWMutex
	subs map[string][]subscription
	log  *logging.Logger
}

type subscription struct {
	name string
	fn   Handler
}

func NewManager(log *logging.Logger) *Manager {
	return &Manager{subs: make(map[string][]subscription), log: log.Sub("hooks")}
}

// On subscribes handler to event under name.
func (m *Manager) On(event, name string, handler Handler) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.subs[event] = append(m.subs[event], subscription{name: name, fn: handler})
	m.mu.Unlock()
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// OnAny subscribes handler to every event. Wildcard handlers run after
// the ones registered for the specific event.
func (m *Manager) OnAny(name string, handler Handler) {
	m.On(anyEvent, name, handler)
}

// Off drops every handler registered as name for event.
func (m *Manager) Off(event, name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[event] = slices.DeleteFunc(m.subs[event], func(s subscription) bool { return s.name == name })
}

// OffAny drops a wildcard handler.
func (m *Manager) OffAny(name string) {
	m.Off(anyEvent, name)
}

// Emit calls the handlers for event in registration order and returns once
// they have all run.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	m.mu.RLock()
	targets := slices.Concat(m.subs[event], m.subs[anyEvent])
	m.mu.RUnlock()

	p := Payload{Event: event, Time: time.Now().UTC(), Data: data}
	for _, s := range targets {
		if err := s.fn(ctx, p); err != nil {
			m.log.Warn().Err(err).Str("event", event).Str("handler", s.name).Msg("hook handler failed")
		}
	}
}
