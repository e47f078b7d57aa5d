package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitCallsListenersInOrder(t *testing.T) {
	bus := NewBus()
	var got []int

	bus.On(RoomCreated, func(any) { got = append(got, 1) })
	bus.On(RoomCreated, func(any) { got = append(got, 2) })
	bus.On(RoomCreated, func(any) { got = append(got, 3) })

	bus.Emit(RoomCreated, RoomPayload{RoomID: "r1"})

	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestEmitPassesPayload(t *testing.T) {
	bus := NewBus()
	var received any

	bus.On(PeerJoined, func(p any) { received = p })
	bus.Emit(PeerJoined, PeerRoomPayload{PeerID: "p1", RoomID: "r1"})

	payload, ok := received.(PeerRoomPayload)
	assert.True(t, ok)
	assert.EqualValues(t, "p1", payload.PeerID)
	assert.EqualValues(t, "r1", payload.RoomID)
}

func TestDuplicateRegistrationInvokedTwice(t *testing.T) {
	bus := NewBus()
	calls := 0
	fn := func(any) { calls++ }

	bus.On(PeerConnected, fn)
	bus.On(PeerConnected, fn)
	bus.Emit(PeerConnected, PeerPayload{PeerID: "p1"})

	assert.Equal(t, 2, calls)
}

func TestOffRemovesOneInstance(t *testing.T) {
	bus := NewBus()
	calls := 0
	fn := func(any) { calls++ }

	off1 := bus.On(PeerConnected, fn)
	bus.On(PeerConnected, fn)

	off1()
	bus.Emit(PeerConnected, PeerPayload{PeerID: "p1"})
	assert.Equal(t, 1, calls)

	// Double-unsubscribe is a no-op.
	off1()
	bus.Emit(PeerConnected, PeerPayload{PeerID: "p1"})
	assert.Equal(t, 2, calls)
}

func TestPanickingListenerDoesNotStopDelivery(t *testing.T) {
	bus := NewBus()
	var after bool

	bus.On(ServerError, func(any) { panic("listener bug") })
	bus.On(ServerError, func(any) { after = true })

	assert.NotPanics(t, func() {
		bus.Emit(ServerError, ServerErrorPayload{})
	})
	assert.True(t, after)
}

func TestEmitWithNoListeners(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Emit(ServerStopped, nil)
	})
}

func TestMutationDuringEmit(t *testing.T) {
	bus := NewBus()
	calls := 0

	// A listener that registers another listener mid-emit must not affect
	// the in-flight delivery.
	bus.On(RoomRemoved, func(any) {
		calls++
		bus.On(RoomRemoved, func(any) { calls += 100 })
	})

	bus.Emit(RoomRemoved, RoomPayload{RoomID: "r1"})
	assert.Equal(t, 1, calls)

	bus.Emit(RoomRemoved, RoomPayload{RoomID: "r1"})
	assert.Equal(t, 102, calls)
}

func TestConcurrentOnEmitOff(t *testing.T) {
	bus := NewBus()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			off := bus.On(PeerDisconnected, func(any) {})
			bus.Emit(PeerDisconnected, PeerPayload{PeerID: "p"})
			off()
		}()
	}
	wg.Wait()
}
