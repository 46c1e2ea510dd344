// Package api serves the agent over HTTP: the invoke endpoint used by the
// CMS, read-only views of the local database and a websocket stream of
// harvest events.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/harvestagent/internal/agent"
	"github.com/soyeahso/harvestagent/internal/hooks"
	"github.com/soyeahso/harvestagent/internal/logging"
	"github.com/soyeahso/harvestagent/internal/store"
	"github.com/soyeahso/harvestagent/internal/version"
)

// Invoker runs a harvester on request.
type Invoker interface {
	InvokeHarvester(ctx context.Context, p agent.Params) agent.Result
}

// Options configures the server.
type Options struct {
	Addr string
	// Token, when set, must accompany every request except /health.
	Token          string
	AllowedOrigins []string
}

// Server is the agent HTTP + WebSocket server.
type Server struct {
	opts     Options
	invoker  Invoker
	db       *store.DB
	hooks    *hooks.Manager
	log      *logging.Logger
	clients  *ClientRegistry
	version  string
	eventSeq atomic.Int64

	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter

	mu         sync.Mutex
	startedAt  time.Time
	httpServer *http.Server
	addr       string
}

// broadcastHook names the wildcard hook that feeds the websocket stream.
const broadcastHook = "api.broadcast"

// New creates a server. hm may be nil, in which case the websocket stream
// stays silent.
func New(opts Options, inv Invoker, db *store.DB, hm *hooks.Manager, log *logging.Logger) *Server {
	s := &Server{
		opts:        opts,
		invoker:     inv,
		db:          db,
		hooks:       hm,
		log:         log.Sub("api"),
		clients:     NewClientRegistry(log.Sub("clients")),
		version:     version.Version,
		authLimiter: newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(opts.AllowedOrigins),
		},
	}
	hm.OnAny(broadcastHook, s.broadcast)
	return s
}

// checkWebSocketOrigin allows clients without an Origin header and browsers
// from one of the allowed origins.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return isOriginAllowed(origin, allowed)
	}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return withMiddleware(mux, s.log, s.opts, s.authLimiter)
}

// Start listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}

	srv := &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// Invocations run a whole harvest before responding.
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.httpServer = srv
	s.addr = ln.Addr().String()
	s.startedAt = time.Now()
	s.mu.Unlock()

	if s.opts.Token == "" {
		s.log.Warn().Msg("no API token configured; the API is open to anyone who can reach it")
	}
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Bool("auth", s.opts.Token != "").
		Msg("api server ready")
	s.hooks.Emit(ctx, hooks.EventServerStart, map[string]any{"addr": ln.Addr().String()})

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down api server")
		s.hooks.Emit(context.Background(), hooks.EventServerStop, nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.clients.CloseAll("server shutting down")
		s.hooks.OffAny(broadcastHook)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("api server shutdown")
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the listen address, or an empty string before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}

// broadcast relays a hook event to every websocket client.
func (s *Server) broadcast(_ context.Context, p hooks.Payload) error {
	if s.clients.Count() == 0 {
		return nil
	}
	if n := s.clients.Broadcast(p.Event, p, s.eventSeq.Add(1)); n > 0 {
		s.log.Trace().Str("event", p.Event).Int("clients", n).Msg("event broadcast")
	}
	return nil
}

// handleWebSocket upgrades the connection and keeps it registered until the
// client goes away. Clients only receive; anything they send is discarded.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(64 * 1024)

	var events []string
	if v := r.URL.Query().Get("events"); v != "" {
		events = strings.Split(v, ",")
	}
	client := NewClient(conn, r.UserAgent(), events)
	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		_ = client.Close("")
	}()

	hello, err := NewEvent("hello", map[string]any{
		"connId":  client.ConnID,
		"version": s.version,
		"events":  hooks.AllEvents,
	}, 0)
	if err == nil {
		err = client.Send(hello)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("connId", client.ConnID).Msg("sending hello")
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ConnID).Msg("client closed connection")
			} else {
				s.log.Debug().Err(err).Str("connId", client.ConnID).Msg("read error")
			}
			return
		}
	}
}
