package chunkcache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"edfhub/internal/edf"
	"edfhub/internal/logging"
)

func makeChunk(n int) *edf.Chunk {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = float64(i)
	}
	return &edf.Chunk{
		Labels:  []string{"EEG"},
		Signals: []edf.Signal{{Label: "EEG", SamplingFrequencyHz: 100, Samples: samples}},
	}
}

func TestGetMissReturnsFalse(t *testing.T) {
	c := New(0, 0, logging.Discard())
	_, ok := c.Get(NewKey("/a.edf", 0, 1000))
	require.False(t, ok)
}

func TestPutThenGetDeepCopyIsolation(t *testing.T) {
	c := New(0, 0, logging.Discard())
	key := NewKey("/a.edf", 0, 1000)
	c.Put(key, makeChunk(10))

	first, ok := c.Get(key)
	require.True(t, ok)
	first.Signals[0].Samples[0] = 999

	second, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, 0.0, second.Signals[0].Samples[0])
}

func TestRawOnlyCachingSingleEntryPerKey(t *testing.T) {
	c := New(0, 0, logging.Discard())
	// Two different "logical" reads with different preprocessing intents
	// still map to the same Key because preprocessingKey is always empty.
	key := NewKey("/a.edf", 0, 1000)
	c.Put(key, makeChunk(10))
	c.Put(key, makeChunk(20))

	require.Equal(t, 1, c.Stats().Entries)
}

func TestByteBudgetEviction(t *testing.T) {
	// Each chunk of 100 samples costs 100*8+1024 = 1824 bytes.
	c := New(1824*2, 1000, logging.Discard())
	c.Put(NewKey("/a.edf", 0, 100), makeChunk(100))
	c.Put(NewKey("/a.edf", 100, 100), makeChunk(100))
	require.LessOrEqual(t, c.Stats().Bytes, int64(1824*2))

	// A third insert should evict the LRU (first) entry to stay in budget.
	c.Put(NewKey("/a.edf", 200, 100), makeChunk(100))
	require.LessOrEqual(t, c.Stats().Bytes, int64(1824*2))
	_, ok := c.Get(NewKey("/a.edf", 0, 100))
	require.False(t, ok)
}

func TestEntryCountEviction(t *testing.T) {
	c := New(0, 2, logging.Discard())
	c.Put(NewKey("/a.edf", 0, 10), makeChunk(10))
	c.Put(NewKey("/a.edf", 10, 10), makeChunk(10))
	c.Put(NewKey("/a.edf", 20, 10), makeChunk(10))
	require.LessOrEqual(t, c.Stats().Entries, 2)
}

func TestInvalidatePathRemovesOnlyThatPath(t *testing.T) {
	c := New(0, 0, logging.Discard())
	c.Put(NewKey("/a.edf", 0, 10), makeChunk(10))
	c.Put(NewKey("/b.edf", 0, 10), makeChunk(10))

	c.InvalidatePath("/a.edf")
	_, okA := c.Get(NewKey("/a.edf", 0, 10))
	_, okB := c.Get(NewKey("/b.edf", 0, 10))
	require.False(t, okA)
	require.True(t, okB)
}

func TestExists(t *testing.T) {
	c := New(0, 0, logging.Discard())
	key := NewKey("/a.edf", 0, 10)
	require.False(t, c.Exists(key))
	c.Put(key, makeChunk(10))
	require.True(t, c.Exists(key))
}
