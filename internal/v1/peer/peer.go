// Package peer implements the server-side representation of one connected
// client. Each peer owns its WebSocket handle and runs two goroutines: a
// read loop feeding frames to the server's dispatcher and a write loop that
// serializes every socket write, including protocol pings.
//
// A Peer is a pure state holder: it never mutates the server's registries
// and never emits events. Room membership transitions (JoinRoom/LeaveRoom)
// act on the peer's own state only; the server keeps the registries
// consistent with them.
package peer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/parleyhq/parley/internal/v1/logging"
	"github.com/parleyhq/parley/internal/v1/protocol"
	"github.com/parleyhq/parley/internal/v1/types"
	"github.com/parleyhq/parley/internal/v1/validation"
)

const (
	// maxPayloadBytes caps inbound frame size at 1 MiB.
	maxPayloadBytes = 1 << 20

	writeWait      = 10 * time.Second
	sendBufferSize = 256
)

// Room membership state errors.
var (
	ErrAlreadyInRoom = errors.New("peer is already in a room")
	ErrNotInRoom     = errors.New("peer is not in a room")
)

// wsConnection defines the interface for WebSocket connection operations.
// In production this is satisfied by *websocket.Conn from gorilla/websocket;
// tests substitute mock implementations.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// Peer represents a single connected client.
type Peer struct {
	conn wsConnection

	// ID is the immutable identity assigned on accept: a random 128-bit
	// value in canonical hyphenated 36-character form.
	ID types.PeerIDType

	// JoinedAt is the accept timestamp. Immutable.
	JoinedAt time.Time

	send   chan []byte
	pingCh chan struct{}
	done   chan struct{}

	mu          sync.RWMutex
	displayName types.DisplayNameType
	roomID      types.RoomIDType // "" while not in a room
	isAlive     bool
	lastPong    time.Time
	closed      bool

	closeOnce sync.Once
}

// New creates a Peer around an accepted connection. An empty displayName
// gets a generated fallback derived from the assigned id, so the display
// name is always valid after construction.
func New(conn wsConnection, displayName types.DisplayNameType) *Peer {
	id := uuid.NewString()
	if displayName == "" {
		displayName = types.DisplayNameType("Guest-" + id[:8])
	}
	return &Peer{
		conn:        conn,
		ID:          types.PeerIDType(id),
		JoinedAt:    time.Now(),
		send:        make(chan []byte, sendBufferSize),
		pingCh:      make(chan struct{}, 1),
		done:        make(chan struct{}),
		displayName: displayName,
		isAlive:     true,
		lastPong:    time.Now(),
	}
}

// GetID satisfies types.PeerHandle.
func (p *Peer) GetID() types.PeerIDType {
	return p.ID
}

// GetDisplayName satisfies types.PeerHandle.
func (p *Peer) GetDisplayName() types.DisplayNameType {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.displayName
}

// RoomID returns the id of the room the peer is currently in, or "".
func (p *Peer) RoomID() types.RoomIDType {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.roomID
}

// InRoom reports whether the peer is currently a room member.
func (p *Peer) InRoom() bool {
	return p.RoomID() != ""
}

// IsAlive reports whether the peer answered the most recent liveness ping.
func (p *Peer) IsAlive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isAlive
}

// LastPong returns the timestamp of the most recent pong.
func (p *Peer) LastPong() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastPong
}

// Closed reports whether the peer's connection has been shut down.
func (p *Peer) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Send enqueues an encoded frame for delivery. It reports false when the
// peer is closed or its outbound buffer is full; it never blocks and never
// panics. Satisfies types.PeerHandle.
func (p *Peer) Send(frame []byte) bool {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return false
	}

	select {
	case p.send <- frame:
		return true
	default:
		logging.Warn(context.Background(), "Peer send buffer full, dropping frame",
			zap.String("peerId", string(p.ID)))
		return false
	}
}

// SendError wraps text in an ERROR frame and sends it.
func (p *Peer) SendError(text string) bool {
	return p.Send(protocol.EncodeError(text))
}

// Ping flips the liveness flag to false and schedules a protocol-level ping
// through the write loop. The flag stays false until the next pong.
func (p *Peer) Ping() {
	p.mu.Lock()
	p.isAlive = false
	p.mu.Unlock()

	select {
	case p.pingCh <- struct{}{}:
	default:
	}
}

// UpdatePongReceived flips the liveness flag to true and bumps the
// last-pong timestamp. Installed as the connection's pong handler.
func (p *Peer) UpdatePongReceived() {
	p.mu.Lock()
	p.isAlive = true
	p.lastPong = time.Now()
	p.mu.Unlock()
}

// UpdateDisplayName trims, validates and assigns a new display name. The
// peer's state is unchanged on refusal.
func (p *Peer) UpdateDisplayName(s string) *validation.Refusal {
	if ref := validation.DisplayName(s); ref != nil {
		return ref
	}
	trimmed := validation.TrimDisplayName(s)

	p.mu.Lock()
	p.displayName = types.DisplayNameType(trimmed)
	p.mu.Unlock()
	return nil
}

// JoinRoom records room membership on the peer. Fails if the peer is
// already in a room; a peer is in at most one room at a time.
func (p *Peer) JoinRoom(id types.RoomIDType) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.roomID != "" {
		return ErrAlreadyInRoom
	}
	p.roomID = id
	return nil
}

// LeaveRoom clears room membership and returns the previous room id.
func (p *Peer) LeaveRoom() (types.RoomIDType, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.roomID == "" {
		return "", ErrNotInRoom
	}
	prev := p.roomID
	p.roomID = ""
	return prev, nil
}

// Terminate forces the socket closed without a close handshake. Safe to
// call more than once.
func (p *Peer) Terminate() {
	p.close()
	_ = p.conn.Close()
}

// CloseWithCode writes a close control frame with the given code and then
// closes the socket. Used by the server on peer-creation failure (1002).
func (p *Peer) CloseWithCode(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	p.close()
	_ = p.conn.Close()
}

// close marks the peer closed and releases the write loop.
func (p *Peer) close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.done)
	})
}

// ReadLoop reads frames until the socket closes, invoking handle for each
// text frame. Non-text frames are ignored. The loop installs the pong
// handler and the 1 MiB read limit; it returns after marking the peer
// closed, at which point the caller performs registry cleanup.
func (p *Peer) ReadLoop(handle func(data []byte)) {
	defer func() {
		p.close()
		_ = p.conn.Close()
	}()

	p.conn.SetReadLimit(maxPayloadBytes)
	p.conn.SetPongHandler(func(string) error {
		p.UpdatePongReceived()
		return nil
	})

	for {
		messageType, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		handle(data)
	}
}

// WriteLoop serializes every socket write for this peer: queued frames and
// protocol pings. It exits when the peer is closed or a write fails.
func (p *Peer) WriteLoop() {
	defer func() { _ = p.conn.Close() }()

	for {
		select {
		case <-p.done:
			return
		case frame := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logging.Warn(context.Background(), "Peer write failed",
					zap.String("peerId", string(p.ID)), zap.Error(err))
				return
			}
		case <-p.pingCh:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
