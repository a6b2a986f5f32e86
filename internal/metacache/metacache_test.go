package metacache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"edfhub/internal/edf"
	"edfhub/internal/logging"
)

func TestGetMissReturnsFalse(t *testing.T) {
	c := New(10, time.Minute, logging.Discard())
	_, ok := c.Get("/data/a.edf")
	require.False(t, ok)
}

func TestPutThenGetHit(t *testing.T) {
	c := New(10, time.Minute, logging.Discard())
	meta := &edf.FileMetadata{TotalSamples: 1_000_000}
	c.Put("/data/a.edf", meta)

	got, ok := c.Get("/data/a.edf")
	require.True(t, ok)
	require.Equal(t, meta, got)
}

func TestTTLExpiry(t *testing.T) {
	c := New(10, 100*time.Millisecond, logging.Discard())
	fake := time.Now()
	c.now = func() time.Time { return fake }
	c.Put("/data/a.edf", &edf.FileMetadata{})

	fake = fake.Add(200 * time.Millisecond)
	_, ok := c.Get("/data/a.edf")
	require.False(t, ok)
	require.Equal(t, 0, c.Stats().Size)
}

func TestLRUEvictionAtCapacity(t *testing.T) {
	c := New(2, time.Minute, logging.Discard())
	c.Put("a", &edf.FileMetadata{})
	c.Put("b", &edf.FileMetadata{})
	// touch "a" to make it MRU
	_, _ = c.Get("a")
	c.Put("c", &edf.FileMetadata{}) // should evict "b" (LRU)

	_, okA := c.Get("a")
	_, okB := c.Get("b")
	_, okC := c.Get("c")
	require.True(t, okA)
	require.False(t, okB)
	require.True(t, okC)
}

func TestRemoveAndClear(t *testing.T) {
	c := New(10, time.Minute, logging.Discard())
	c.Put("a", &edf.FileMetadata{})
	c.Remove("a")
	_, ok := c.Get("a")
	require.False(t, ok)

	c.Put("b", &edf.FileMetadata{})
	c.Put("c", &edf.FileMetadata{})
	c.Clear()
	require.Equal(t, 0, c.Stats().Size)
}
