package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadRateFormat(t *testing.T) {
	_, err := New("not-a-rate")
	assert.Error(t, err)
}

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/ws", nil)
	c.Request.RemoteAddr = "203.0.113.7:51000"
	return c, w
}

func TestCheckWebSocketAllowsUnderLimit(t *testing.T) {
	rl, err := New("5-M")
	require.NoError(t, err)

	c, w := newTestContext()
	assert.True(t, rl.CheckWebSocket(c))
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
}

func TestCheckWebSocketRejectsOverLimit(t *testing.T) {
	rl, err := New("2-M")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		c, _ := newTestContext()
		require.True(t, rl.CheckWebSocket(c))
	}

	c, w := newTestContext()
	assert.False(t, rl.CheckWebSocket(c))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Too many connections")
}

func TestCheckWebSocketLimitsPerIP(t *testing.T) {
	rl, err := New("1-M")
	require.NoError(t, err)

	c, _ := newTestContext()
	require.True(t, rl.CheckWebSocket(c))

	// A different IP has its own budget.
	c2, _ := newTestContext()
	c2.Request.RemoteAddr = "198.51.100.9:40000"
	assert.True(t, rl.CheckWebSocket(c2))
}
