package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	err := Initialize(true)
	require.NoError(t, err)
	assert.NotNil(t, GetLogger())

	// Second call is absorbed by sync.Once.
	assert.NoError(t, Initialize(false))
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	// Must return a usable fallback rather than nil.
	assert.NotNil(t, GetLogger())
}

func TestAppendContextFields(t *testing.T) {
	ctx := context.WithValue(context.Background(), CorrelationIDKey, "cid-1")
	ctx = context.WithValue(ctx, PeerIDKey, "peer-1")
	ctx = context.WithValue(ctx, RoomIDKey, "room-1")

	fields := appendContextFields(ctx, nil)

	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	assert.Contains(t, keys, "correlation_id")
	assert.Contains(t, keys, "peer_id")
	assert.Contains(t, keys, "room_id")
	assert.Contains(t, keys, "service")
}

func TestAppendContextFieldsNilContext(t *testing.T) {
	assert.Nil(t, appendContextFields(nil, nil)) //nolint:staticcheck // exercising the nil guard
}

func TestLogHelpersDoNotPanic(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		Info(ctx, "info message")
		Warn(ctx, "warn message")
		Error(ctx, "error message")
	})
}
