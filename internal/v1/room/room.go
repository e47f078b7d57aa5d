// Package room implements the named peer container: membership, optional
// password, and exclude-aware fan-out. A Room holds peers through
// types.PeerHandle only; it never owns peer lifecycles and never touches
// the server registries.
package room

import (
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"k8s.io/utils/set"

	"github.com/parleyhq/parley/internal/v1/types"
	"github.com/parleyhq/parley/internal/v1/validation"
)

// Membership errors.
var (
	ErrPeerPresent = errors.New("peer is already in the room")
	ErrPeerAbsent  = errors.New("peer is not in the room")
)

// Room is a named container of peers with an optional password.
type Room struct {
	// ID is the validated, immutable room id.
	ID types.RoomIDType

	// CreatedAt is the construction timestamp.
	CreatedAt time.Time

	mu          sync.RWMutex
	password    string
	hasPassword bool
	peers       map[types.PeerIDType]types.PeerHandle
	order       []types.PeerIDType // insertion order of member ids
}

// New constructs a Room, validating the id and, when present, the
// password. Returns the validation refusal on invalid input.
func New(id types.RoomIDType, password *string) (*Room, *validation.Refusal) {
	if ref := validation.RoomID(string(id)); ref != nil {
		return nil, ref
	}

	r := &Room{
		ID:        id,
		CreatedAt: time.Now(),
		peers:     make(map[types.PeerIDType]types.PeerHandle),
	}
	if password != nil {
		if ref := validation.Password(*password); ref != nil {
			return nil, ref
		}
		r.password = *password
		r.hasPassword = true
	}
	return r, nil
}

// AddPeer adds a member. Fails if a peer with the same id is present.
func (r *Room) AddPeer(p types.PeerHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := p.GetID()
	if _, exists := r.peers[id]; exists {
		return ErrPeerPresent
	}
	r.peers[id] = p
	r.order = append(r.order, id)
	return nil
}

// RemovePeer removes a member by id. Fails if absent.
func (r *Room) RemovePeer(id types.PeerIDType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[id]; !exists {
		return ErrPeerAbsent
	}
	delete(r.peers, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// GetPeer looks up a member by id.
func (r *Room) GetPeer(id types.PeerIDType) (types.PeerHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

// HasPeer reports whether id is a member.
func (r *Room) HasPeer(id types.PeerIDType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.peers[id]
	return ok
}

// PeerCount returns the number of members.
func (r *Room) PeerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// IsEmpty reports whether the room has no members.
func (r *Room) IsEmpty() bool {
	return r.PeerCount() == 0
}

// HasPassword reports whether the room was created with a password.
func (r *Room) HasPassword() bool {
	return r.hasPassword
}

// VerifyPassword returns true for passwordless rooms and for candidates
// equal to the stored password. Comparison is constant-time.
func (r *Room) VerifyPassword(candidate string) bool {
	if !r.hasPassword {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(r.password), []byte(candidate)) == 1
}

// Peers returns a snapshot of the members in insertion order.
func (r *Room) Peers() []types.PeerHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.PeerHandle, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.peers[id])
	}
	return out
}

// PeerInfos returns the public projection of the members in insertion
// order, excluding the given ids.
func (r *Room) PeerInfos(exclude set.Set[types.PeerIDType]) []types.PeerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.PeerInfo, 0, len(r.order))
	for _, id := range r.order {
		if exclude.Has(id) {
			continue
		}
		p := r.peers[id]
		out = append(out, types.PeerInfo{ID: p.GetID(), DisplayName: p.GetDisplayName()})
	}
	return out
}

// Broadcast writes frame to every member whose id is not in exclude.
// Per-peer send failures are ignored: delivery failure for one member does
// not block the others. The member set is snapshotted before sending so a
// concurrent remove cannot invalidate the iteration.
func (r *Room) Broadcast(frame []byte, exclude set.Set[types.PeerIDType]) {
	r.mu.RLock()
	recipients := make([]types.PeerHandle, 0, len(r.order))
	for _, id := range r.order {
		if exclude.Has(id) {
			continue
		}
		recipients = append(recipients, r.peers[id])
	}
	r.mu.RUnlock()

	for _, p := range recipients {
		p.Send(frame)
	}
}
