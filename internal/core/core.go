// Package core wires every component into a single, explicitly constructed
// Core, replacing the source's module-level cached singletons ("get cache
// manager", "get server settings") with ordinary dependency injection. Core
// is built once at startup and threaded into the HTTP adapter and CLI — no
// component reaches for a package-level global.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"edfhub/internal/auth"
	"edfhub/internal/channelselect"
	"edfhub/internal/chunkcache"
	"edfhub/internal/config"
	"edfhub/internal/corepool"
	"edfhub/internal/dda"
	"edfhub/internal/dda/history"
	"edfhub/internal/edf"
	"edfhub/internal/handlepool"
	"edfhub/internal/logging"
	"edfhub/internal/metacache"
	"edfhub/internal/orchestrator"
)

// preloadDrainTimeout bounds how long Close waits for in-flight preload
// tasks before moving on.
const preloadDrainTimeout = 5 * time.Second

// ErrPathForbidden is returned when a request targets a path outside every
// configured allowed root.
var ErrPathForbidden = errors.New("path not under any allowed root")

// Core is the process-lifetime object graph: every cache, pool, and domain
// service the HTTP surface and CLI commands depend on.
type Core struct {
	Config       *config.Config
	Orchestrator *orchestrator.Orchestrator
	Channels     *channelselect.Selector
	DDA          *dda.Runner
	History      history.Store
	Tokens       *auth.TokenService

	preload *corepool.Pool
	logger  *slog.Logger
}

// New constructs a fully wired Core from cfg. When cfg.SyntheticMode is
// set, the Orchestrator serves every read from a fixed in-memory signal
// instead of touching disk, so the service runs without any real EDF files
// or a DDA binary on hand.
func New(cfg *config.Config, logger *slog.Logger) *Core {
	logger = logging.Default(logger)

	metadata := metacache.New(cfg.MetadataCacheSize, cfg.MetadataTTL(), logger)
	chunks := chunkcache.New(cfg.ChunkCacheBytes, cfg.ChunkCacheEntries, logger)
	handles := handlepool.New(cfg.HandlePoolSize, cfg.HandleTTL(), logger)

	preloadWorkers := cfg.PreloadWorkers
	if !cfg.PreloadEnabled {
		preloadWorkers = 0
	}
	preload := corepool.New(max(preloadWorkers, 1), preloadWorkers*4, logger)

	orch := orchestrator.New(metadata, chunks, handles, preload, cfg.SyntheticMode, logger)
	selector := channelselect.New(orch, orch, logger)

	ddaRunner := dda.New(dda.Config{
		BinaryPath: cfg.DDABinaryPath,
	}, orch, selector, logger)

	var tokens *auth.TokenService
	if cfg.AuthSecret != "" {
		tokens = auth.NewTokenService([]byte(cfg.AuthSecret), 24*time.Hour)
	}

	return &Core{
		Config:       cfg,
		Orchestrator: orch,
		Channels:     selector,
		DDA:          ddaRunner,
		History:      history.NewMemoryStore(),
		Tokens:       tokens,
		preload:      preload,
		logger:       logger.With("component", "core"),
	}
}

// ReadChunk is a thin pass-through enforcing the path-allowlist
// precondition before delegating to the orchestrator.
func (c *Core) ReadChunk(path string, chunkStart, chunkSize int64, opts edf.PreprocessingOptions) (*edf.Chunk, int64, error) {
	if !c.Config.IsAllowedPath(path) {
		return nil, 0, fmt.Errorf("%w: %s", ErrPathForbidden, path)
	}
	return c.Orchestrator.ReadChunk(path, chunkStart, chunkSize, opts)
}

// GetMetadata is a thin pass-through enforcing the path-allowlist
// precondition before delegating to the orchestrator.
func (c *Core) GetMetadata(path string) (*edf.FileMetadata, error) {
	if !c.Config.IsAllowedPath(path) {
		return nil, fmt.Errorf("%w: %s", ErrPathForbidden, path)
	}
	return c.Orchestrator.GetMetadata(path)
}

// RunDDA enforces the path-allowlist precondition before delegating to the
// DDA runner. cpuTime requests the engine's own -CPUtime reporting.
func (c *Core) RunDDA(ctx context.Context, path string, channels []string, opts edf.PreprocessingOptions, cpuTime bool) dda.Result {
	if !c.Config.IsAllowedPath(path) {
		return dda.Result{
			FilePath:     path,
			Error:        "PathForbidden",
			ErrorMessage: fmt.Sprintf("path not under any allowed root: %s", path),
		}
	}
	return c.DDA.Run(ctx, path, channels, opts, cpuTime)
}

// Close tears down every cache, the handle pool sweeper, and the preload
// worker pool. It blocks briefly for in-flight preload tasks to drain.
func (c *Core) Close() {
	done := make(chan struct{})
	go func() {
		c.preload.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(preloadDrainTimeout):
		c.logger.Warn("preload pool did not drain within timeout, continuing shutdown")
	}

	c.Orchestrator.ClearAll()
}
