package sse

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventEncoder_WritesSSEFrameFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	enc := &eventEncoder{w: rec, flusher: rec}

	enc.write("connected", connectedData{StreamID: "abc", Wallet: "wallet1"})

	body := rec.Body.String()
	require.True(t, strings.HasPrefix(body, "id: 1\nevent: connected\ndata: "))
	require.True(t, strings.HasSuffix(body, "\n\n"))
	assert.Contains(t, body, `"stream_id":"abc"`)
	assert.True(t, rec.Flushed)
}

func TestEventEncoder_IDsAreMonotonic(t *testing.T) {
	rec := httptest.NewRecorder()
	enc := &eventEncoder{w: rec, flusher: rec}

	enc.write("heartbeat", heartbeatData{})
	enc.write("heartbeat", heartbeatData{})
	enc.write("heartbeat", heartbeatData{})

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "id: 1\n"))
	assert.True(t, strings.Contains(body, "id: 2\n"))
	assert.True(t, strings.Contains(body, "id: 3\n"))
}

func TestEventEncoder_SkipsUnmarshalableEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	enc := &eventEncoder{w: rec, flusher: rec}

	// a bare channel value can't be marshaled to JSON; write must not panic
	// and must advance neither the body nor (meaningfully) block on it.
	enc.write("progress", make(chan int))

	assert.Empty(t, rec.Body.String())
}

func TestAcquireSlot_EnforcesPerKeyCap(t *testing.T) {
	h := &Handler{cfg: Config{MaxStreamsPerKey: 2}, perKey: make(map[string]int)}

	assert.True(t, h.acquireSlot("key1"))
	assert.True(t, h.acquireSlot("key1"))
	assert.False(t, h.acquireSlot("key1"), "third concurrent stream for the same key must be rejected")

	// a different key has its own budget
	assert.True(t, h.acquireSlot("key2"))
}

func TestReleaseSlot_FreesBudgetForFollowingAcquire(t *testing.T) {
	h := &Handler{cfg: Config{MaxStreamsPerKey: 1}, perKey: make(map[string]int)}

	require.True(t, h.acquireSlot("key1"))
	require.False(t, h.acquireSlot("key1"))

	h.releaseSlot("key1")
	assert.True(t, h.acquireSlot("key1"))
}

func TestReleaseSlot_RemovesKeyOnceCountReachesZero(t *testing.T) {
	h := &Handler{cfg: Config{MaxStreamsPerKey: 3}, perKey: make(map[string]int)}

	require.True(t, h.acquireSlot("key1"))
	h.releaseSlot("key1")

	_, present := h.perKey["key1"]
	assert.False(t, present, "releasing the last slot for a key should drop its map entry")
}

func TestDefaultConfig_MatchesSpecDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30, int(cfg.Keepalive.Seconds()))
	assert.Equal(t, 10, int(cfg.MaxDuration.Minutes()))
	assert.Equal(t, 10, cfg.MaxStreamsPerKey)
}
