package peer

import (
	"sync"
	"time"
)

// MockConnection implements wsConnection
type MockConnection struct {
	ReadMessageFunc  func() (int, []byte, error)
	WriteMessageFunc func(int, []byte) error
	WriteControlFunc func(int, []byte, time.Time) error
	CloseFunc        func() error

	mu          sync.Mutex
	pongHandler func(string) error
	readLimit   int64
	closeCalls  int
}

func (m *MockConnection) ReadMessage() (int, []byte, error) {
	if m.ReadMessageFunc != nil {
		return m.ReadMessageFunc()
	}
	return 0, nil, nil
}

func (m *MockConnection) WriteMessage(messageType int, data []byte) error {
	if m.WriteMessageFunc != nil {
		return m.WriteMessageFunc(messageType, data)
	}
	return nil
}

func (m *MockConnection) WriteControl(messageType int, data []byte, deadline time.Time) error {
	if m.WriteControlFunc != nil {
		return m.WriteControlFunc(messageType, data, deadline)
	}
	return nil
}

func (m *MockConnection) Close() error {
	m.mu.Lock()
	m.closeCalls++
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *MockConnection) SetReadLimit(limit int64) {
	m.mu.Lock()
	m.readLimit = limit
	m.mu.Unlock()
}

func (m *MockConnection) SetWriteDeadline(_ time.Time) error {
	return nil
}

func (m *MockConnection) SetPongHandler(h func(string) error) {
	m.mu.Lock()
	m.pongHandler = h
	m.mu.Unlock()
}

func (m *MockConnection) PongHandler() func(string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pongHandler
}

func (m *MockConnection) ReadLimit() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readLimit
}

func (m *MockConnection) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}
