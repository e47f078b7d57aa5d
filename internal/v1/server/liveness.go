package server

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/parleyhq/parley/internal/v1/events"
	"github.com/parleyhq/parley/internal/v1/logging"
	"github.com/parleyhq/parley/internal/v1/metrics"
	"github.com/parleyhq/parley/internal/v1/peer"
)

// livenessLoop runs the two-tick liveness model: each tick pings every
// peer, flipping its alive flag to false; a pong flips it back. A peer
// observed still-false at the next tick missed a full cycle and is
// terminated. Termination closes the socket, so the peer's read loop
// performs the registry cleanup.
func (s *Server) livenessLoop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.checkLiveness()
		}
	}
}

func (s *Server) checkLiveness() {
	s.mu.Lock()
	peers := make([]*peer.Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		if !p.IsAlive() {
			logging.Warn(context.Background(), "Peer missed liveness pong, terminating",
				zap.String("peerId", string(p.ID)), zap.Time("lastPong", p.LastPong()))
			metrics.PeerTimeouts.Inc()
			s.bus.Emit(events.PeerTimeout, events.PeerPayload{
				PeerID:      p.ID,
				DisplayName: p.GetDisplayName(),
			})
			p.Terminate()
			continue
		}
		p.Ping()
	}
}
