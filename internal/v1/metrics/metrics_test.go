package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestConnectionGaugeHelpers(t *testing.T) {
	before := testutil.ToFloat64(ActiveConnections)

	IncConnection()
	if got := testutil.ToFloat64(ActiveConnections); got != before+1 {
		t.Errorf("expected gauge %v after Inc, got %v", before+1, got)
	}

	DecConnection()
	if got := testutil.ToFloat64(ActiveConnections); got != before {
		t.Errorf("expected gauge %v after Dec, got %v", before, got)
	}
}

func TestCountersIncrementWithoutPanic(t *testing.T) {
	t.Run("DispatchedFrames", func(t *testing.T) {
		DispatchedFrames.WithLabelValues("JOIN_ROOM", "ok").Inc()
		val := testutil.ToFloat64(DispatchedFrames.WithLabelValues("JOIN_ROOM", "ok"))
		if val < 1 {
			t.Errorf("expected DispatchedFrames at least 1, got %v", val)
		}
	})

	t.Run("DroppedFrames", func(t *testing.T) {
		DroppedFrames.WithLabelValues("bad_json").Inc()
	})

	t.Run("RelayedSignals", func(t *testing.T) {
		RelayedSignals.WithLabelValues("OFFER").Inc()
	})

	t.Run("DispatchDuration", func(t *testing.T) {
		DispatchDuration.WithLabelValues("CUSTOM").Observe(0.002)
	})

	t.Run("RoomPeers", func(t *testing.T) {
		RoomPeers.WithLabelValues("room-1").Set(3)
		RoomPeers.DeleteLabelValues("room-1")
	})
}
