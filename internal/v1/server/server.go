// Package server implements the signaling orchestrator: the WebSocket
// acceptor, the peer and room registries, the inbound dispatch state
// machine, the liveness ticker, and the start/stop lifecycle.
//
// Shared state (both registries and every registered peer's membership) is
// guarded by one server mutex; handlers hold it for the whole mutation plus
// any resulting fan-out, so a broadcast is atomic with respect to the next
// inbound frame. Peer sends only enqueue, so nothing blocks under the lock.
// Event emission is deferred until after the lock is released.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/parleyhq/parley/internal/v1/events"
	"github.com/parleyhq/parley/internal/v1/logging"
	"github.com/parleyhq/parley/internal/v1/metrics"
	"github.com/parleyhq/parley/internal/v1/peer"
	"github.com/parleyhq/parley/internal/v1/protocol"
	"github.com/parleyhq/parley/internal/v1/ratelimit"
	"github.com/parleyhq/parley/internal/v1/room"
	"github.com/parleyhq/parley/internal/v1/types"
	"github.com/parleyhq/parley/internal/v1/validation"
)

const defaultPingInterval = 30 * time.Second

// defaultICEServers is advertised on CONNECTION_ESTABLISHED when the
// embedder supplies none.
var defaultICEServers = []json.RawMessage{
	json.RawMessage(`{"urls":"stun:stun.l.google.com:19302"}`),
	json.RawMessage(`{"urls":"stun:stun1.l.google.com:19302"}`),
}

// Lifecycle errors.
var (
	ErrAlreadyRunning = errors.New("server is already running")
	ErrNotRunning     = errors.New("server is not running")
)

// Limits bounds room occupancy and room count. Zero means unlimited.
type Limits struct {
	MaxPeersPerRoom   int
	MaxRoomsPerServer int
}

// DefaultLimits returns the default limits: 4 peers per room, unlimited
// rooms.
func DefaultLimits() Limits {
	return Limits{MaxPeersPerRoom: 4}
}

// Options configures a Server.
type Options struct {
	// Host and Port select the listen address. Mutually exclusive with
	// Listener.
	Host string
	Port string

	// Path is the WebSocket route. Defaults to "/ws".
	Path string

	// Listener attaches the server to an existing listener instead of
	// binding Host:Port.
	Listener net.Listener

	// Engine is the gin engine the WebSocket route is registered on. A bare
	// engine with recovery is created when nil. Supply a pre-built engine to
	// layer middleware under the route.
	Engine *gin.Engine

	// Limits defaults to DefaultLimits() when nil. An explicit zero value
	// lifts both limits.
	Limits *Limits

	// RequireRoomPassword refuses creation of passwordless rooms.
	RequireRoomPassword bool

	// ICEServers is advertised verbatim to newly connected peers.
	ICEServers []json.RawMessage

	// PingInterval is the liveness tick cadence. Defaults to 30s.
	PingInterval time.Duration

	// RateLimiter, when set, guards the upgrade endpoint per client IP.
	RateLimiter *ratelimit.RateLimiter

	// CheckOrigin overrides the upgrade origin check. All origins are
	// accepted when nil.
	CheckOrigin func(r *http.Request) bool
}

// Server is the signaling server. Construct with New.
type Server struct {
	opts     Options
	limits   Limits
	bus      *events.Bus
	engine   *gin.Engine
	upgrader websocket.Upgrader

	mu      sync.Mutex
	peers   map[types.PeerIDType]*peer.Peer
	rooms   map[types.RoomIDType]*room.Room
	running bool
	httpSrv *http.Server
	addr    string

	tickerStop chan struct{}
	tickerDone chan struct{}
}

// New builds a Server and registers its WebSocket route on the engine.
func New(opts Options) (*Server, error) {
	if opts.Listener != nil && (opts.Host != "" || opts.Port != "") {
		return nil, errors.New("listener and host/port are mutually exclusive")
	}
	if opts.Listener == nil && opts.Port == "" {
		return nil, errors.New("either a listener or a port is required")
	}
	if opts.Path == "" {
		opts.Path = "/ws"
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.ICEServers == nil {
		opts.ICEServers = defaultICEServers
	}

	limits := DefaultLimits()
	if opts.Limits != nil {
		limits = *opts.Limits
	}

	engine := opts.Engine
	if engine == nil {
		gin.SetMode(gin.ReleaseMode)
		engine = gin.New()
		engine.Use(gin.Recovery())
	}

	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	s := &Server{
		opts:   opts,
		limits: limits,
		bus:    events.NewBus(),
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    4096,
			WriteBufferSize:   4096,
			EnableCompression: false,
			CheckOrigin:       checkOrigin,
		},
		peers: make(map[types.PeerIDType]*peer.Peer),
		rooms: make(map[types.RoomIDType]*room.Room),
	}

	engine.GET(opts.Path, s.serveWs)
	return s, nil
}

// Events returns the lifecycle event bus embedders subscribe on.
func (s *Server) Events() *events.Bus {
	return s.bus
}

// Handler returns the HTTP handler serving the WebSocket route, for
// mounting on an external server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Running reports whether the server is accepting connections.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Addr returns the bound listen address, valid while running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start binds the listener, begins serving, and starts the liveness
// ticker. Fails if the server is already running or the bind fails.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	ln := s.opts.Listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", net.JoinHostPort(s.opts.Host, s.opts.Port))
		if err != nil {
			s.mu.Unlock()
			return err
		}
	}

	s.httpSrv = &http.Server{Handler: s.engine}
	s.addr = ln.Addr().String()
	s.running = true
	s.tickerStop = make(chan struct{})
	s.tickerDone = make(chan struct{})
	s.mu.Unlock()

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(context.Background(), "Server accept loop failed", zap.Error(err))
			s.bus.Emit(events.ServerError, events.ServerErrorPayload{Err: err})
		}
	}()
	go s.livenessLoop(s.opts.PingInterval, s.tickerStop, s.tickerDone)

	logging.Info(context.Background(), "Signaling server started", zap.String("addr", s.addr))
	s.bus.Emit(events.ServerStarted, events.ServerStartedPayload{Addr: s.addr})
	return nil
}

// Stop stops the ticker, closes the acceptor, terminates every peer, and
// clears both registries. Fails if the server is not running. On close
// failure state is left intact so Stop can be retried.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	stop, done, srv := s.tickerStop, s.tickerDone, s.httpSrv
	s.mu.Unlock()

	close(stop)
	<-done

	if err := srv.Close(); err != nil {
		// Restart the ticker so a failed Stop leaves a running server.
		s.mu.Lock()
		s.tickerStop = make(chan struct{})
		s.tickerDone = make(chan struct{})
		go s.livenessLoop(s.opts.PingInterval, s.tickerStop, s.tickerDone)
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	peers := make([]*peer.Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.peers = make(map[types.PeerIDType]*peer.Peer)
	for id := range s.rooms {
		metrics.RoomPeers.DeleteLabelValues(string(id))
	}
	s.rooms = make(map[types.RoomIDType]*room.Room)
	s.running = false
	s.addr = ""
	s.mu.Unlock()

	for _, p := range peers {
		p.Terminate()
	}
	metrics.ActiveRooms.Set(0)

	logging.Info(context.Background(), "Signaling server stopped")
	s.bus.Emit(events.ServerStopped, nil)
	return nil
}

// serveWs upgrades an HTTP request and runs the connection lifecycle.
func (s *Server) serveWs(c *gin.Context) {
	ctx := c.Request.Context()

	if s.opts.RateLimiter != nil && !s.opts.RateLimiter.CheckWebSocket(c) {
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(ctx, "WebSocket upgrade failed", zap.Error(err))
		return
	}

	// An invalid requested name falls back to the generated one.
	requested := validation.TrimDisplayName(c.Query("displayName"))
	if requested != "" && validation.DisplayName(requested) != nil {
		requested = ""
	}

	p := peer.New(conn, types.DisplayNameType(requested))

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		p.CloseWithCode(websocket.CloseGoingAway, "server stopping")
		return
	}
	s.peers[p.ID] = p
	s.mu.Unlock()

	metrics.IncConnection()
	logging.Info(ctx, "Peer connected", zap.String("peerId", string(p.ID)))
	s.bus.Emit(events.PeerConnected, events.PeerPayload{
		PeerID:      p.ID,
		DisplayName: p.GetDisplayName(),
	})

	greeting, err := protocol.Encode(protocol.TypeConnectionEstablished, protocol.ConnectionEstablishedPayload{
		PeerID:      p.ID,
		DisplayName: p.GetDisplayName(),
		ICEServers:  s.opts.ICEServers,
	})
	if err != nil || !p.Send(greeting) {
		logging.Error(ctx, "Failed to greet peer", zap.Error(err), zap.String("peerId", string(p.ID)))
		p.CloseWithCode(websocket.CloseProtocolError, "connection setup failed")
		s.unregister(p)
		return
	}

	go p.WriteLoop()
	p.ReadLoop(func(data []byte) { s.dispatch(p, data) })

	s.handleDisconnect(p)
}

// handleDisconnect severs room membership and removes the peer from the
// registry after its read loop has returned.
func (s *Server) handleDisconnect(p *peer.Peer) {
	var pending []func()

	s.mu.Lock()
	s.removePeerFromRoomLocked(p, &pending)
	delete(s.peers, p.ID)
	s.mu.Unlock()

	for _, emit := range pending {
		emit()
	}

	metrics.DecConnection()
	logging.Info(context.Background(), "Peer disconnected", zap.String("peerId", string(p.ID)))
	s.bus.Emit(events.PeerDisconnected, events.PeerPayload{
		PeerID:      p.ID,
		DisplayName: p.GetDisplayName(),
	})
}

// unregister drops a peer that never completed setup.
func (s *Server) unregister(p *peer.Peer) {
	s.mu.Lock()
	delete(s.peers, p.ID)
	s.mu.Unlock()
	metrics.DecConnection()
}
