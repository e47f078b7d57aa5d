package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/parleyhq/parley/internal/v1/events"
	"github.com/parleyhq/parley/internal/v1/logging"
	"github.com/parleyhq/parley/internal/v1/metrics"
	"github.com/parleyhq/parley/internal/v1/peer"
	"github.com/parleyhq/parley/internal/v1/protocol"
	"github.com/parleyhq/parley/internal/v1/room"
	"github.com/parleyhq/parley/internal/v1/types"
	"github.com/parleyhq/parley/internal/v1/validation"
)

// dispatch parses, guards and routes one inbound frame. Malformed frames
// and unknown types are logged and dropped with the socket left open.
func (s *Server) dispatch(p *peer.Peer, data []byte) {
	start := time.Now()

	env, err := protocol.Decode(data)
	if err != nil {
		logging.Warn(context.Background(), "Dropping malformed frame",
			zap.String("peerId", string(p.ID)), zap.Error(err))
		metrics.DroppedFrames.WithLabelValues("bad_envelope").Inc()
		return
	}
	if !protocol.IsClientType(env.Type) {
		logging.Warn(context.Background(), "Dropping frame with unknown type",
			zap.String("peerId", string(p.ID)), zap.String("type", string(env.Type)))
		metrics.DroppedFrames.WithLabelValues("unknown_type").Inc()
		return
	}

	// Frames racing a removal are dropped.
	s.mu.Lock()
	_, registered := s.peers[p.ID]
	s.mu.Unlock()
	if !registered || p.Closed() {
		metrics.DroppedFrames.WithLabelValues("unregistered").Inc()
		return
	}

	switch env.Type {
	case protocol.TypeJoinRoom:
		s.handleJoinRoom(p, env.Payload)
	case protocol.TypeLeaveRoom:
		s.handleLeaveRoom(p)
	case protocol.TypeUpdateDisplayName:
		s.handleUpdateDisplayName(p, env.Payload)
	case protocol.TypeKnock:
		s.handleKnock(p, env.Payload)
	case protocol.TypeCustom:
		s.handleCustom(p, env.Payload)
	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICECandidate:
		s.handleSignaling(p, env.Type, env.Payload)
	}

	metrics.DispatchedFrames.WithLabelValues(string(env.Type), "ok").Inc()
	metrics.DispatchDuration.WithLabelValues(string(env.Type)).Observe(time.Since(start).Seconds())
}

// decodePayload unmarshals a typed payload, logging and counting a drop on
// failure.
func decodePayload[T any](p *peer.Peer, raw json.RawMessage, out *T) bool {
	if err := json.Unmarshal(raw, out); err != nil {
		logging.Warn(context.Background(), "Dropping frame with invalid payload",
			zap.String("peerId", string(p.ID)), zap.Error(err))
		metrics.DroppedFrames.WithLabelValues("bad_payload").Inc()
		return false
	}
	return true
}

func (s *Server) handleJoinRoom(p *peer.Peer, raw json.RawMessage) {
	var pl protocol.JoinRoomPayload
	if !decodePayload(p, raw, &pl) {
		return
	}

	if pl.DisplayName != nil {
		if ref := p.UpdateDisplayName(*pl.DisplayName); ref != nil {
			p.SendError("Failed to update display name")
			return
		}
	}

	roomID := types.RoomIDType(pl.RoomID)
	var pending []func()

	s.mu.Lock()
	r, exists := s.rooms[roomID]
	isNewRoom := false

	if !exists {
		if s.opts.RequireRoomPassword && pl.Password == nil {
			s.mu.Unlock()
			p.SendError("Password is required to create a room")
			return
		}
		if s.limits.MaxRoomsPerServer > 0 && len(s.rooms) >= s.limits.MaxRoomsPerServer {
			current, max := len(s.rooms), s.limits.MaxRoomsPerServer
			s.mu.Unlock()
			p.SendError("Server room limit reached")
			s.bus.Emit(events.RoomLimitReachedPerServer, events.RoomLimitPayload{
				CurrentRooms: current,
				MaxRooms:     max,
			})
			return
		}
		var ref *validation.Refusal
		r, ref = room.New(roomID, pl.Password)
		if ref != nil {
			s.mu.Unlock()
			logging.Warn(context.Background(), "Room construction refused",
				zap.String("roomId", pl.RoomID), zap.String("code", ref.Code))
			p.SendError("Failed to create room")
			return
		}
		s.rooms[roomID] = r
		isNewRoom = true
	} else {
		if r.HasPassword() && (pl.Password == nil || !r.VerifyPassword(*pl.Password)) {
			s.mu.Unlock()
			frame, _ := protocol.Encode(protocol.TypePasswordRequired, protocol.PasswordRequiredPayload{RoomID: roomID})
			p.Send(frame)
			return
		}
		if s.limits.MaxPeersPerRoom > 0 && r.PeerCount() >= s.limits.MaxPeersPerRoom {
			current, max := r.PeerCount(), s.limits.MaxPeersPerRoom
			s.mu.Unlock()
			p.SendError("Room is full")
			s.bus.Emit(events.PeerLimitReachedPerRoom, events.PeerLimitPayload{
				RoomID:       roomID,
				CurrentPeers: current,
				MaxPeers:     max,
			})
			return
		}
	}

	if err := p.JoinRoom(roomID); err != nil {
		s.rollbackJoinLocked(roomID, isNewRoom)
		s.mu.Unlock()
		p.SendError("Failed to join room")
		return
	}
	if err := r.AddPeer(p); err != nil {
		_, _ = p.LeaveRoom()
		s.rollbackJoinLocked(roomID, isNewRoom)
		s.mu.Unlock()
		p.SendError("Failed to join room")
		return
	}

	others := r.PeerInfos(set.New(p.ID))
	metrics.RoomPeers.WithLabelValues(string(roomID)).Set(float64(r.PeerCount()))
	if isNewRoom {
		metrics.ActiveRooms.Inc()
		pending = append(pending, func() {
			s.bus.Emit(events.RoomCreated, events.RoomPayload{RoomID: roomID})
		})
	}
	pending = append(pending, func() {
		s.bus.Emit(events.PeerJoined, events.PeerRoomPayload{
			PeerID:      p.ID,
			DisplayName: p.GetDisplayName(),
			RoomID:      roomID,
		})
	})

	// Existing members learn of the joiner before the joiner's own reply.
	announce, _ := protocol.Encode(protocol.TypePeerJoined, protocol.PeerJoinedPayload{
		PeerID:      p.ID,
		DisplayName: p.GetDisplayName(),
	})
	r.Broadcast(announce, set.New(p.ID))

	reply, _ := protocol.Encode(protocol.TypeRoomJoined, protocol.RoomJoinedPayload{
		RoomID:      roomID,
		DisplayName: p.GetDisplayName(),
		Peers:       others,
	})
	p.Send(reply)
	s.mu.Unlock()

	logging.Info(context.Background(), "Peer joined room",
		zap.String("peerId", string(p.ID)), zap.String("roomId", string(roomID)))
	for _, emit := range pending {
		emit()
	}
}

// rollbackJoinLocked undoes the lazy room creation of a failed join.
func (s *Server) rollbackJoinLocked(roomID types.RoomIDType, isNewRoom bool) {
	if isNewRoom {
		delete(s.rooms, roomID)
	}
}

func (s *Server) handleLeaveRoom(p *peer.Peer) {
	var pending []func()

	s.mu.Lock()
	roomID, ok := s.removePeerFromRoomLocked(p, &pending)
	if ok {
		frame, _ := protocol.Encode(protocol.TypeRoomLeft, protocol.RoomLeftPayload{RoomID: roomID})
		p.Send(frame)
	}
	s.mu.Unlock()

	if !ok {
		p.SendError("Failed to leave room")
		return
	}
	for _, emit := range pending {
		emit()
	}
}

func (s *Server) handleUpdateDisplayName(p *peer.Peer, raw json.RawMessage) {
	var pl protocol.UpdateDisplayNamePayload
	if !decodePayload(p, raw, &pl) {
		return
	}

	old := p.GetDisplayName()
	if ref := p.UpdateDisplayName(pl.DisplayName); ref != nil {
		p.SendError("Failed to update display name")
		return
	}
	updated := p.GetDisplayName()

	s.mu.Lock()
	reply, _ := protocol.Encode(protocol.TypeDisplayNameUpdated, protocol.DisplayNameUpdatedPayload{
		DisplayName: updated,
	})
	p.Send(reply)

	if roomID := p.RoomID(); roomID != "" {
		if r, ok := s.rooms[roomID]; ok {
			announce, _ := protocol.Encode(protocol.TypePeerUpdated, protocol.PeerUpdatedPayload{
				PeerID:      p.ID,
				DisplayName: updated,
			})
			r.Broadcast(announce, set.New(p.ID))
		}
	}
	s.mu.Unlock()

	s.bus.Emit(events.PeerDisplayNameUpdated, events.DisplayNamePayload{
		PeerID:         p.ID,
		OldDisplayName: old,
		NewDisplayName: updated,
	})
}

func (s *Server) handleKnock(p *peer.Peer, raw json.RawMessage) {
	var pl protocol.KnockPayload
	if !decodePayload(p, raw, &pl) {
		return
	}

	roomID := types.RoomIDType(pl.RoomID)
	resp := protocol.KnockResponsePayload{RoomID: roomID}

	s.mu.Lock()
	if r, ok := s.rooms[roomID]; ok {
		count := r.PeerCount()
		resp.Exists = true
		resp.HasPassword = r.HasPassword()
		resp.PeerCount = count
		resp.IsFull = s.limits.MaxPeersPerRoom > 0 && count >= s.limits.MaxPeersPerRoom
	}
	s.mu.Unlock()

	frame, _ := protocol.Encode(protocol.TypeKnockResponse, resp)
	p.Send(frame)
}

func (s *Server) handleCustom(p *peer.Peer, raw json.RawMessage) {
	var pl protocol.CustomPayload
	if !decodePayload(p, raw, &pl) {
		return
	}

	if ref := validation.CustomType(pl.CustomType); ref != nil {
		p.SendError("Invalid custom type")
		return
	}

	targetType := ""
	if pl.Target != nil {
		targetType = pl.Target.Type
	}
	if targetType == "" {
		if !p.InRoom() {
			p.SendError("Target is required when not in a room")
			return
		}
		targetType = protocol.TargetRoom
	}

	relay, _ := protocol.Encode(protocol.TypeCustom, protocol.CustomRelayPayload{
		FromPeerID: p.ID,
		CustomType: pl.CustomType,
		Data:       pl.Data,
	})

	switch targetType {
	case protocol.TargetPeer:
		if pl.Target == nil || pl.Target.PeerID == "" {
			p.SendError("Target peerId is required")
			return
		}
		s.mu.Lock()
		target, ok := s.memberOfSendersRoomLocked(p, types.PeerIDType(pl.Target.PeerID))
		if ok {
			target.Send(relay)
		}
		s.mu.Unlock()
		if !ok {
			p.SendError("Target peer not found in room")
			return
		}
	case protocol.TargetRoom:
		s.mu.Lock()
		roomID := p.RoomID()
		r, ok := s.rooms[roomID]
		if roomID == "" || !ok {
			s.mu.Unlock()
			p.SendError("You are not in a room")
			return
		}
		r.Broadcast(relay, set.New(p.ID))
		s.mu.Unlock()
	default:
		p.SendError(fmt.Sprintf("Unknown target type: %s", targetType))
		return
	}

	metrics.RelayedSignals.WithLabelValues("CUSTOM").Inc()
}

func (s *Server) handleSignaling(p *peer.Peer, t protocol.MessageType, raw json.RawMessage) {
	var pl protocol.SignalingPayload
	if !decodePayload(p, raw, &pl) {
		return
	}

	toPeerID := types.PeerIDType(pl.ToPeerID)
	if toPeerID == p.ID {
		p.SendError("Cannot send signaling messages to yourself")
		return
	}

	relay, _ := protocol.Encode(t, protocol.SignalingRelayPayload{
		FromPeerID: p.ID,
		ToPeerID:   toPeerID,
		Offer:      pl.Offer,
		Answer:     pl.Answer,
		Candidate:  pl.Candidate,
	})

	s.mu.Lock()
	target, ok := s.memberOfSendersRoomLocked(p, toPeerID)
	if ok {
		target.Send(relay)
	}
	s.mu.Unlock()

	if !ok {
		p.SendError("Target peer not found in room")
		return
	}
	metrics.RelayedSignals.WithLabelValues(string(t)).Inc()
}

// memberOfSendersRoomLocked resolves a target peer that must share the
// sender's room. Callers hold s.mu.
func (s *Server) memberOfSendersRoomLocked(p *peer.Peer, target types.PeerIDType) (types.PeerHandle, bool) {
	roomID := p.RoomID()
	if roomID == "" {
		return nil, false
	}
	r, ok := s.rooms[roomID]
	if !ok {
		logging.Error(context.Background(), "Peer references a room missing from the registry",
			zap.String("peerId", string(p.ID)), zap.String("roomId", string(roomID)))
		return nil, false
	}
	return r.GetPeer(target)
}

// removePeerFromRoomLocked severs the peer's room membership: announces
// PEER_LEFT to the remaining members and deletes the room once empty.
// Emits are appended to pending for delivery after s.mu is released.
// Callers hold s.mu.
func (s *Server) removePeerFromRoomLocked(p *peer.Peer, pending *[]func()) (types.RoomIDType, bool) {
	roomID, err := p.LeaveRoom()
	if err != nil {
		return "", false
	}

	r, ok := s.rooms[roomID]
	if !ok {
		logging.Error(context.Background(), "Peer left a room missing from the registry",
			zap.String("peerId", string(p.ID)), zap.String("roomId", string(roomID)))
		return "", false
	}

	if err := r.RemovePeer(p.ID); err != nil {
		logging.Error(context.Background(), "Room membership out of sync",
			zap.String("peerId", string(p.ID)), zap.String("roomId", string(roomID)), zap.Error(err))
	}

	frame, _ := protocol.Encode(protocol.TypePeerLeft, protocol.PeerLeftPayload{PeerID: p.ID})
	r.Broadcast(frame, set.New[types.PeerIDType]())

	*pending = append(*pending, func() {
		s.bus.Emit(events.PeerLeft, events.PeerRoomPayload{
			PeerID:      p.ID,
			DisplayName: p.GetDisplayName(),
			RoomID:      roomID,
		})
	})

	if r.IsEmpty() {
		delete(s.rooms, roomID)
		metrics.ActiveRooms.Dec()
		metrics.RoomPeers.DeleteLabelValues(string(roomID))
		*pending = append(*pending, func() {
			s.bus.Emit(events.RoomRemoved, events.RoomPayload{RoomID: roomID})
		})
	} else {
		metrics.RoomPeers.WithLabelValues(string(roomID)).Set(float64(r.PeerCount()))
	}

	return roomID, true
}
