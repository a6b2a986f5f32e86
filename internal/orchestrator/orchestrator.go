// Package orchestrator implements the Chunk Orchestrator: the single
// coordinator for metadata cache, chunk cache, and handle pool reads, plus
// preprocessing-on-read and best-effort preload scheduling. Grounded on the
// source's CacheManager.read_chunk_optimized and its preload scheduling in
// chunk_reader.py.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"edfhub/internal/chunkcache"
	"edfhub/internal/corepool"
	"edfhub/internal/edf"
	"edfhub/internal/handlepool"
	"edfhub/internal/logging"
	"edfhub/internal/metacache"
)

// Stats aggregates the per-tier observability snapshot served by the
// GET /edf/cache/stats endpoint.
type Stats struct {
	Metadata metacache.Stats
	Chunks   chunkcache.Stats
	Handles  handlepool.Stats
}

// Orchestrator is the sole owner of the three caches and the handle pool; no
// other package reaches into them directly.
type Orchestrator struct {
	metadata  *metacache.Cache
	chunks    *chunkcache.Cache
	handles   *handlepool.Pool
	preload   *corepool.Pool
	synthetic bool
	logger    *slog.Logger
}

// New wires an Orchestrator over already-constructed caches, pool, and
// preload worker pool. When synthetic is true, every read is served from a
// deterministic in-memory signal instead of touching disk — the declared
// testability affordance for running without real EDF files or a DDA
// binary on hand.
func New(metadata *metacache.Cache, chunks *chunkcache.Cache, handles *handlepool.Pool, preload *corepool.Pool, synthetic bool, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		metadata:  metadata,
		chunks:    chunks,
		handles:   handles,
		preload:   preload,
		synthetic: synthetic,
		logger:    logging.Default(logger).With("component", "orchestrator"),
	}
}

// GetMetadata returns path's FileMetadata, populating the metadata cache on
// miss. This is the single path every other component must use to resolve
// metadata. In synthetic mode, path is never touched on disk — every key
// resolves to the same fixed synthetic record.
func (o *Orchestrator) GetMetadata(path string) (*edf.FileMetadata, error) {
	if meta, ok := o.metadata.Get(path); ok {
		return meta, nil
	}

	if o.synthetic {
		meta := edf.SyntheticMetadata()
		o.metadata.Put(path, meta)
		return meta, nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", edf.ErrFileNotFound, path)
	}

	meta, err := edf.ReadHeader(path)
	if err != nil {
		return nil, err
	}
	o.metadata.Put(path, meta)
	return meta, nil
}

// ReadChunk returns the (optionally preprocessed) chunk covering
// [chunkStart, chunkStart+chunkSize) of path, along with the file's total
// sample count. A raw chunk cache hit is cloned and preprocessed in place; a
// miss decodes through a fresh reader, caches the raw result, and schedules
// best-effort preloads of the neighboring chunks.
func (o *Orchestrator) ReadChunk(path string, chunkStart, chunkSize int64, opts edf.PreprocessingOptions) (*edf.Chunk, int64, error) {
	if chunkStart < 0 {
		chunkStart = 0
	}
	if chunkSize <= 0 {
		chunkSize = edf.DefaultChunkSize
	}

	key := chunkcache.NewKey(path, chunkStart, chunkSize)

	if cached, ok := o.chunks.Get(key); ok {
		meta, err := o.GetMetadata(path)
		total := int64(0)
		if err == nil {
			total = meta.TotalSamples
		}
		o.schedulePreload(path, chunkStart, chunkSize, total)
		return edf.ApplyPreprocessing(cached, opts), total, nil
	}

	if o.synthetic {
		raw, total := edf.SyntheticChunk(chunkStart, chunkSize)
		o.chunks.Put(key, raw)
		o.schedulePreload(path, chunkStart, chunkSize, total)
		return edf.ApplyPreprocessing(raw, opts), total, nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, 0, fmt.Errorf("%w: %s", edf.ErrFileNotFound, path)
	}

	raw, total, err := edf.ReadChunkRaw(path, chunkStart, chunkSize, o.logger)
	if err != nil {
		return nil, 0, err
	}
	o.chunks.Put(key, raw)

	o.schedulePreload(path, chunkStart, chunkSize, total)

	return edf.ApplyPreprocessing(raw, opts), total, nil
}

// ReadRawChunk reads a chunk with no preprocessing applied. It satisfies the
// channelselect.ChunkSource interface used by the variance probe.
func (o *Orchestrator) ReadRawChunk(path string, chunkStart, chunkSize int64) (*edf.Chunk, int64, error) {
	return o.ReadChunk(path, chunkStart, chunkSize, edf.PreprocessingOptions{})
}

// CheckCached reports whether a raw chunk for the given window is already
// present, without decoding anything.
func (o *Orchestrator) CheckCached(path string, chunkStart, chunkSize int64) bool {
	if chunkStart < 0 {
		chunkStart = 0
	}
	if chunkSize <= 0 {
		chunkSize = edf.DefaultChunkSize
	}
	return o.chunks.Exists(chunkcache.NewKey(path, chunkStart, chunkSize))
}

// Invalidate drops path's metadata entry, every chunk cache entry under
// path, and closes any pooled handle for it.
func (o *Orchestrator) Invalidate(path string) {
	o.metadata.Remove(path)
	o.chunks.InvalidatePath(path)
	o.handles.Close(path)
}

// ClearAll empties every cache tier and closes every pooled handle.
func (o *Orchestrator) ClearAll() {
	o.metadata.Clear()
	o.chunks.Clear()
	o.handles.CloseAll()
}

// Stats returns the aggregated per-tier snapshot.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Metadata: o.metadata.Stats(),
		Chunks:   o.chunks.Stats(),
		Handles:  o.handles.Stats(),
	}
}

// schedulePreload submits best-effort background loads of the neighboring
// forward and backward chunk windows, skipping any already cached.
func (o *Orchestrator) schedulePreload(path string, chunkStart, chunkSize, totalSamples int64) {
	next := chunkStart + chunkSize
	if next < totalSamples && !o.CheckCached(path, next, chunkSize) {
		o.preload.Submit(func(ctx context.Context) {
			o.preloadOne(path, next, chunkSize)
		})
	}

	prev := chunkStart - chunkSize
	if prev < 0 {
		prev = 0
	}
	if prev != chunkStart && !o.CheckCached(path, prev, chunkSize) {
		o.preload.Submit(func(ctx context.Context) {
			o.preloadOne(path, prev, chunkSize)
		})
	}
}

func (o *Orchestrator) preloadOne(path string, chunkStart, chunkSize int64) {
	if o.synthetic {
		raw, _ := edf.SyntheticChunk(chunkStart, chunkSize)
		o.chunks.Put(chunkcache.NewKey(path, chunkStart, chunkSize), raw)
		return
	}

	raw, _, err := edf.ReadChunkRaw(path, chunkStart, chunkSize, o.logger)
	if err != nil {
		o.logger.Debug("preload read failed, discarding", "path", path, "chunk_start", chunkStart, "error", err)
		return
	}
	o.chunks.Put(chunkcache.NewKey(path, chunkStart, chunkSize), raw)
}
