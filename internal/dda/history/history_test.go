package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"edfhub/internal/dda"
)

func TestMemoryStorePutThenGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	entry := Entry{ID: "r1", UserID: "u1", Result: dda.Result{FilePath: "x.edf"}, CreatedAt: time.Now()}

	require.NoError(t, s.Put(ctx, entry))
	got, ok, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x.edf", got.Result.FilePath)
}

func TestMemoryStoreGetMissReturnsFalse(t *testing.T) {
	s := NewMemoryStore()
	_, ok, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreListFiltersByUserAndOrdersByTime(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.Put(ctx, Entry{ID: "a", UserID: "u1", CreatedAt: base.Add(2 * time.Second)}))
	require.NoError(t, s.Put(ctx, Entry{ID: "b", UserID: "u1", CreatedAt: base}))
	require.NoError(t, s.Put(ctx, Entry{ID: "c", UserID: "u2", CreatedAt: base}))

	ids, err := s.List(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, ids)
}

func TestDiskStorePutThenGetRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(filepath.Join(dir, "history"))
	require.NoError(t, err)
	ctx := context.Background()

	entry := Entry{ID: "r1", UserID: "u1", Result: dda.Result{FilePath: "x.edf"}, CreatedAt: time.Now()}
	require.NoError(t, s.Put(ctx, entry))

	got, ok, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x.edf", got.Result.FilePath)
}

func TestDiskStoreGetMissReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(dir)
	require.NoError(t, err)
	_, ok, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDiskStoreListFiltersByUser(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(dir)
	require.NoError(t, err)
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.Put(ctx, Entry{ID: "a", UserID: "u1", CreatedAt: base}))
	require.NoError(t, s.Put(ctx, Entry{ID: "b", UserID: "u2", CreatedAt: base}))

	ids, err := s.List(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, ids)
}
