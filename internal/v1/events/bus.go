// Package events implements the typed publish/subscribe bus the server uses
// to notify embedders of lifecycle events. Listeners are strictly
// observational: a panicking listener is recovered and logged, and never
// interrupts delivery to the remaining listeners.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/parleyhq/parley/internal/v1/logging"
	"github.com/parleyhq/parley/internal/v1/types"
)

// Event names an observable lifecycle transition.
type Event string

const (
	ServerStarted Event = "server:started"
	ServerStopped Event = "server:stopped"
	ServerError   Event = "server:error"

	PeerConnected             Event = "peer:connected"
	PeerDisconnected          Event = "peer:disconnected"
	PeerJoined                Event = "peer:joined"
	PeerLeft                  Event = "peer:left"
	PeerTimeout               Event = "peer:timeout"
	PeerDisplayNameUpdated    Event = "peer:displayNameUpdated"
	PeerLimitReachedPerRoom   Event = "peer:limitReachedPerRoom"
	RoomCreated               Event = "room:created"
	RoomRemoved               Event = "room:removed"
	RoomLimitReachedPerServer Event = "room:limitReachedPerServer"
)

// Handler consumes an event payload. The concrete payload type per event is
// documented on the payload structs below.
type Handler func(payload any)

// registration wraps a handler so the same function can be registered more
// than once and each registration removed individually.
type registration struct {
	fn Handler
}

// Bus is a multi-listener event registry. The zero value is not usable;
// construct with NewBus. Safe for concurrent use; listener lists may be
// mutated while an Emit is in flight (emit iterates a snapshot).
type Bus struct {
	mu       sync.Mutex
	handlers map[Event][]*registration
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Event][]*registration)}
}

// On registers fn for e and returns an unsubscribe function. Registering
// the same function twice invokes it twice per emit; each returned
// unsubscribe removes exactly its own registration. Unsubscribing more than
// once is a no-op.
func (b *Bus) On(e Event, fn Handler) (off func()) {
	reg := &registration{fn: fn}

	b.mu.Lock()
	b.handlers[e] = append(b.handlers[e], reg)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(e, reg) })
	}
}

func (b *Bus) remove(e Event, reg *registration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[e]
	for i, r := range regs {
		if r == reg {
			b.handlers[e] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// Emit delivers payload to every listener registered for e, in registration
// order. Panics inside a listener are recovered and logged so one bad
// listener cannot stop delivery to the others.
func (b *Bus) Emit(e Event, payload any) {
	b.mu.Lock()
	regs := make([]*registration, len(b.handlers[e]))
	copy(regs, b.handlers[e])
	b.mu.Unlock()

	for _, reg := range regs {
		b.dispatch(e, reg, payload)
	}
}

func (b *Bus) dispatch(e Event, reg *registration, payload any) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error(context.Background(), "Event listener panicked",
				zap.String("event", string(e)), zap.Any("panic", r))
		}
	}()
	reg.fn(payload)
}

// --- Event payloads ---

// ServerStartedPayload accompanies ServerStarted.
type ServerStartedPayload struct {
	Addr string
}

// ServerErrorPayload accompanies ServerError.
type ServerErrorPayload struct {
	Err error
}

// PeerPayload accompanies PeerConnected, PeerDisconnected and PeerTimeout.
type PeerPayload struct {
	PeerID      types.PeerIDType
	DisplayName types.DisplayNameType
}

// PeerRoomPayload accompanies PeerJoined and PeerLeft.
type PeerRoomPayload struct {
	PeerID      types.PeerIDType
	DisplayName types.DisplayNameType
	RoomID      types.RoomIDType
}

// DisplayNamePayload accompanies PeerDisplayNameUpdated.
type DisplayNamePayload struct {
	PeerID         types.PeerIDType
	OldDisplayName types.DisplayNameType
	NewDisplayName types.DisplayNameType
}

// PeerLimitPayload accompanies PeerLimitReachedPerRoom.
type PeerLimitPayload struct {
	RoomID       types.RoomIDType
	CurrentPeers int
	MaxPeers     int
}

// RoomLimitPayload accompanies RoomLimitReachedPerServer.
type RoomLimitPayload struct {
	CurrentRooms int
	MaxRooms     int
}

// RoomPayload accompanies RoomCreated and RoomRemoved.
type RoomPayload struct {
	RoomID types.RoomIDType
}
