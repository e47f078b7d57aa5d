package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MockConnection satisfies the connection interface peers are built on.
// Text frames written through the peer's write loop are captured on Frames.
// ReadMessage blocks like an idle socket until the connection is closed.
type MockConnection struct {
	Frames chan []byte

	ReadMessageFunc func() (int, []byte, error)

	mu         sync.Mutex
	closed     chan struct{}
	closeCalls int
}

func NewMockConnection() *MockConnection {
	return &MockConnection{
		Frames: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (m *MockConnection) ReadMessage() (int, []byte, error) {
	if m.ReadMessageFunc != nil {
		return m.ReadMessageFunc()
	}
	<-m.closed
	return 0, nil, websocket.ErrCloseSent
}

func (m *MockConnection) WriteMessage(messageType int, data []byte) error {
	if messageType == websocket.TextMessage {
		select {
		case m.Frames <- data:
		default:
		}
	}
	return nil
}

func (m *MockConnection) WriteControl(int, []byte, time.Time) error {
	return nil
}

func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closeCalls == 0 {
		close(m.closed)
	}
	m.closeCalls++
	return nil
}

func (m *MockConnection) SetReadLimit(int64) {}

func (m *MockConnection) SetWriteDeadline(time.Time) error { return nil }

func (m *MockConnection) SetPongHandler(func(string) error) {}

func (m *MockConnection) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}
