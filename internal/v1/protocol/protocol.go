// Package protocol defines the JSON wire envelope exchanged over WebSocket
// and the typed payloads for every recognized message. The envelope is
// always `{"type": <string>, "payload": <object>}`; frames with any other
// shape are rejected by Decode and dropped by the caller.
//
// Signaling bodies (SDP offers/answers, ICE candidates, iceServers entries,
// CUSTOM data) are carried as json.RawMessage: the server relays them
// verbatim and never interprets their contents.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/parleyhq/parley/internal/v1/types"
)

// MessageType tags a wire envelope.
type MessageType string

// Client -> server message types. Everything else inbound is dropped.
const (
	TypeJoinRoom          MessageType = "JOIN_ROOM"
	TypeLeaveRoom         MessageType = "LEAVE_ROOM"
	TypeUpdateDisplayName MessageType = "UPDATE_DISPLAY_NAME"
	TypeKnock             MessageType = "KNOCK"
	TypeCustom            MessageType = "CUSTOM"
	TypeOffer             MessageType = "OFFER"
	TypeAnswer            MessageType = "ANSWER"
	TypeICECandidate      MessageType = "ICE_CANDIDATE"
)

// Server -> client message types. TypeCustom, TypeOffer, TypeAnswer and
// TypeICECandidate appear in both directions.
const (
	TypeConnectionEstablished MessageType = "CONNECTION_ESTABLISHED"
	TypeRoomJoined            MessageType = "ROOM_JOINED"
	TypeRoomLeft              MessageType = "ROOM_LEFT"
	TypePeerJoined            MessageType = "PEER_JOINED"
	TypePeerLeft              MessageType = "PEER_LEFT"
	TypePeerUpdated           MessageType = "PEER_UPDATED"
	TypeDisplayNameUpdated    MessageType = "DISPLAY_NAME_UPDATED"
	TypeKnockResponse         MessageType = "KNOCK_RESPONSE"
	TypePasswordRequired      MessageType = "PASSWORD_REQUIRED"
	TypeError                 MessageType = "ERROR"
)

// Decode errors.
var (
	ErrNotJSON        = errors.New("frame is not valid JSON")
	ErrBadEnvelope    = errors.New("frame is not a {type, payload} object")
	ErrMissingType    = errors.New("envelope type is missing or not a string")
	ErrMissingPayload = errors.New("envelope payload is missing or not an object")
)

// Envelope is the wire envelope. Payload stays raw until the dispatcher
// knows which typed payload to decode it into.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// clientTypes is the inbound guard set.
var clientTypes = map[MessageType]struct{}{
	TypeJoinRoom:          {},
	TypeLeaveRoom:         {},
	TypeUpdateDisplayName: {},
	TypeKnock:             {},
	TypeCustom:            {},
	TypeOffer:             {},
	TypeAnswer:            {},
	TypeICECandidate:      {},
}

// IsClientType reports whether t is one of the recognized client->server
// message types.
func IsClientType(t MessageType) bool {
	_, ok := clientTypes[t]
	return ok
}

// Decode parses a raw frame into an Envelope, enforcing the envelope shape:
// a JSON object with a string "type" and an object "payload".
func Decode(data []byte) (*Envelope, error) {
	if !json.Valid(data) {
		return nil, ErrNotJSON
	}

	var raw struct {
		Type    *string         `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, ErrBadEnvelope
	}
	if raw.Type == nil {
		return nil, ErrMissingType
	}
	if !isJSONObject(raw.Payload) {
		return nil, ErrMissingPayload
	}

	return &Envelope{Type: MessageType(*raw.Type), Payload: raw.Payload}, nil
}

// isJSONObject reports whether raw is a JSON object literal.
func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// Encode builds the wire bytes for an outbound frame.
func Encode(t MessageType, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Payload: body})
}

// EncodeError builds an ERROR frame. Marshalling a plain string message
// cannot fail, so no error is returned.
func EncodeError(message string) []byte {
	data, _ := Encode(TypeError, ErrorPayload{Message: message})
	return data
}

// --- Client -> server payloads ---

// JoinRoomPayload carries a JOIN_ROOM request. DisplayName and Password are
// pointers so "absent" and "empty" stay distinguishable.
type JoinRoomPayload struct {
	RoomID      string  `json:"roomId"`
	DisplayName *string `json:"displayName,omitempty"`
	Password    *string `json:"password,omitempty"`
}

// UpdateDisplayNamePayload carries an UPDATE_DISPLAY_NAME request.
type UpdateDisplayNamePayload struct {
	DisplayName string `json:"displayName"`
}

// KnockPayload carries a KNOCK query.
type KnockPayload struct {
	RoomID string `json:"roomId"`
}

// CustomTarget selects the destination of a CUSTOM message.
type CustomTarget struct {
	Type   string `json:"type"` // "peer" or "room"
	PeerID string `json:"peerId,omitempty"`
}

// Custom target types.
const (
	TargetPeer = "peer"
	TargetRoom = "room"
)

// CustomPayload carries an application-defined message.
type CustomPayload struct {
	CustomType string          `json:"customType"`
	Target     *CustomTarget   `json:"target,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// SignalingPayload carries an OFFER, ANSWER or ICE_CANDIDATE request. Only
// the inner field matching the envelope type is populated; the server never
// looks inside it.
type SignalingPayload struct {
	ToPeerID  string          `json:"toPeerId"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// --- Server -> client payloads ---

// ConnectionEstablishedPayload greets a newly accepted peer.
type ConnectionEstablishedPayload struct {
	PeerID      types.PeerIDType      `json:"peerId"`
	DisplayName types.DisplayNameType `json:"displayName"`
	ICEServers  []json.RawMessage     `json:"iceServers"`
}

// RoomJoinedPayload confirms a join to the joiner, listing every other
// member already present.
type RoomJoinedPayload struct {
	RoomID      types.RoomIDType      `json:"roomId"`
	DisplayName types.DisplayNameType `json:"displayName"`
	Peers       []types.PeerInfo      `json:"peers"`
}

// RoomLeftPayload confirms a leave to the leaver.
type RoomLeftPayload struct {
	RoomID types.RoomIDType `json:"roomId"`
}

// PeerJoinedPayload announces a new member to the rest of the room.
type PeerJoinedPayload struct {
	PeerID      types.PeerIDType      `json:"peerId"`
	DisplayName types.DisplayNameType `json:"displayName"`
}

// PeerLeftPayload announces a departure to the remaining members.
type PeerLeftPayload struct {
	PeerID types.PeerIDType `json:"peerId"`
}

// PeerUpdatedPayload announces a display-name change to the other members.
type PeerUpdatedPayload struct {
	PeerID      types.PeerIDType      `json:"peerId"`
	DisplayName types.DisplayNameType `json:"displayName"`
}

// DisplayNameUpdatedPayload confirms a display-name change to its author.
type DisplayNameUpdatedPayload struct {
	DisplayName types.DisplayNameType `json:"displayName"`
}

// PasswordRequiredPayload rejects a join with a missing or wrong password.
type PasswordRequiredPayload struct {
	RoomID types.RoomIDType `json:"roomId"`
}

// KnockResponsePayload answers a KNOCK query.
type KnockResponsePayload struct {
	RoomID      types.RoomIDType `json:"roomId"`
	Exists      bool             `json:"exists"`
	HasPassword bool             `json:"hasPassword"`
	PeerCount   int              `json:"peerCount"`
	IsFull      bool             `json:"isFull"`
}

// CustomRelayPayload is a relayed CUSTOM message with the sender attached.
type CustomRelayPayload struct {
	FromPeerID types.PeerIDType `json:"fromPeerId"`
	CustomType string           `json:"customType"`
	Data       json.RawMessage  `json:"data"`
}

// SignalingRelayPayload is a relayed OFFER/ANSWER/ICE_CANDIDATE with the
// sender attached alongside the original target and inner body.
type SignalingRelayPayload struct {
	FromPeerID types.PeerIDType `json:"fromPeerId"`
	ToPeerID   types.PeerIDType `json:"toPeerId"`
	Offer      json.RawMessage  `json:"offer,omitempty"`
	Answer     json.RawMessage  `json:"answer,omitempty"`
	Candidate  json.RawMessage  `json:"candidate,omitempty"`
}

// ErrorPayload carries an operation error back to the offending peer.
type ErrorPayload struct {
	Message string `json:"message"`
}
