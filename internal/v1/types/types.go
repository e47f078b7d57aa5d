package types

// --- Core Domain Types ---

// PeerIDType represents a unique identifier for a connected peer.
// Peer ids are random 128-bit values rendered in canonical hyphenated
// 36-character form.
type PeerIDType string

// RoomIDType represents a unique identifier for a signaling room.
type RoomIDType string

// DisplayNameType represents the human-readable name for a peer.
type DisplayNameType string

// PeerInfo is the public projection of a peer shared with other room
// members (ROOM_JOINED listings and similar).
type PeerInfo struct {
	ID          PeerIDType      `json:"id"`
	DisplayName DisplayNameType `json:"displayName"`
}

// --- Shared Interfaces ---

// PeerHandle defines the behavior a Room needs from a connected peer.
// The room package holds peers through this interface only, so rooms never
// own peer lifecycles and tests can substitute mock peers.
type PeerHandle interface {
	GetID() PeerIDType
	GetDisplayName() DisplayNameType
	// Send enqueues an encoded frame for delivery. It reports false when the
	// peer is closed or its outbound buffer is full; it never blocks.
	Send(frame []byte) bool
}
