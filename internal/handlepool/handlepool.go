// Package handlepool implements the Handle Pool: a bounded LRU of opened EDF
// readers with TTL expiry and liveness validation. Grounded on the source's
// FileHandleManager (OrderedDict of handles + timestamps under RLock, a
// background sweep task that runs every 30s and backs off to 60s on error).
// The sweeper itself is built on github.com/go-co-op/gocron/v2.
package handlepool

import (
	"container/list"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"edfhub/internal/edf"
	"edfhub/internal/logging"
)

// Default bounds for a new pool when the caller passes zero values.
const (
	DefaultMaxHandles = 5
	DefaultTTL        = 180 * time.Second
	sweepInterval     = 30 * time.Second
	sweepBackoff      = 60 * time.Second
)

// Stats reports current pool occupancy for the observability boundary.
type Stats struct {
	OpenHandles int
	MaxHandles  int
	TTL         time.Duration
}

type handleEntry struct {
	path        string
	reader      *edf.Reader
	lastTouched time.Time
	elem        *list.Element
}

// Pool is a bounded, TTL-swept LRU of open edf.Reader handles, at most one
// per file path.
type Pool struct {
	mu         sync.Mutex
	maxHandles int
	ttl        time.Duration
	now        func() time.Time
	order      *list.List
	entries    map[string]*handleEntry
	shutdown   bool

	scheduler   gocron.Scheduler
	sweeperJob  gocron.Job
	sweeperOnce sync.Once
	backedOff   bool
	logger      *slog.Logger
}

// New creates a Pool bounded by maxHandles with the given per-entry TTL.
// Non-positive values fall back to package defaults.
func New(maxHandles int, ttl time.Duration, logger *slog.Logger) *Pool {
	if maxHandles <= 0 {
		maxHandles = DefaultMaxHandles
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Pool{
		maxHandles: maxHandles,
		ttl:        ttl,
		now:        time.Now,
		order:      list.New(),
		entries:    make(map[string]*handleEntry),
		logger:     logging.Default(logger).With("component", "handlepool"),
	}
}

// Acquire returns a live reader for path, opening one if necessary. A
// present-but-stale entry (failed liveness probe) is closed and replaced by
// a fresh open. Ensures the background sweeper is running.
func (p *Pool) Acquire(path string) (*edf.Reader, error) {
	p.ensureSweeper()

	p.mu.Lock()
	if e, ok := p.entries[path]; ok {
		if err := e.reader.Probe(); err == nil {
			p.order.MoveToFront(e.elem)
			e.lastTouched = p.now()
			reader := e.reader
			p.mu.Unlock()
			return reader, nil
		}
		p.logger.Warn("handle failed liveness probe, discarding", "path", path)
		p.removeLocked(e)
		e.reader.Close()
	}

	if len(p.entries) >= p.maxHandles {
		back := p.order.Back()
		if back != nil {
			lru := back.Value.(*handleEntry)
			p.removeLocked(lru)
			p.logger.Debug("evicted LRU handle at capacity", "path", lru.path)
			p.mu.Unlock()
			lru.reader.Close()
			p.mu.Lock()
		}
	}
	p.mu.Unlock()

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", edf.ErrFileNotFound, path)
	}

	reader, err := edf.Open(path)
	if err != nil {
		return nil, err
	}
	if err := reader.Probe(); err != nil {
		reader.Close()
		return nil, fmt.Errorf("handlepool: newly opened reader failed probe: %w", err)
	}

	p.mu.Lock()
	if existing, ok := p.entries[path]; ok {
		existing.lastTouched = p.now()
		p.order.MoveToFront(existing.elem)
		kept := existing.reader
		p.mu.Unlock()
		reader.Close()
		return kept, nil
	}
	e := &handleEntry{path: path, reader: reader, lastTouched: p.now()}
	e.elem = p.order.PushFront(e)
	p.entries[path] = e
	p.mu.Unlock()

	return reader, nil
}

// Close closes and removes path's handle, if present.
func (p *Pool) Close(path string) {
	p.mu.Lock()
	e, ok := p.entries[path]
	if ok {
		p.removeLocked(e)
	}
	p.mu.Unlock()
	if ok {
		e.reader.Close()
	}
}

// CloseAll marks the pool shut down, closes every handle, and cancels the
// sweeper. The sweeper is not restarted after this call.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	p.shutdown = true
	all := make([]*handleEntry, 0, len(p.entries))
	for _, e := range p.entries {
		all = append(all, e)
	}
	p.order.Init()
	p.entries = make(map[string]*handleEntry)
	scheduler := p.scheduler
	p.mu.Unlock()

	for _, e := range all {
		e.reader.Close()
	}
	if scheduler != nil {
		if err := scheduler.Shutdown(); err != nil {
			p.logger.Warn("sweeper shutdown error", "error", err)
		}
	}
}

// Stats returns the pool's current occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{OpenHandles: len(p.entries), MaxHandles: p.maxHandles, TTL: p.ttl}
}

func (p *Pool) removeLocked(e *handleEntry) {
	p.order.Remove(e.elem)
	delete(p.entries, e.path)
}

// ensureSweeper lazily starts the background TTL sweeper on first use.
func (p *Pool) ensureSweeper() {
	p.sweeperOnce.Do(func() {
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			p.logger.Error("failed to create sweeper scheduler, TTL sweeping disabled", "error", err)
			return
		}
		job, err := scheduler.NewJob(
			gocron.DurationJob(sweepInterval),
			gocron.NewTask(p.sweepOnce),
			gocron.WithName("handlepool-ttl-sweep"),
		)
		if err != nil {
			p.logger.Error("failed to schedule sweeper job, TTL sweeping disabled", "error", err)
			return
		}
		p.mu.Lock()
		p.scheduler = scheduler
		p.sweeperJob = job
		p.mu.Unlock()
		scheduler.Start()
	})
}

// sweepOnce closes every handle whose last touch exceeds the TTL. On a
// failure (a panic, or one or more handle closes erroring out) it logs,
// recovers rather than panicking the scheduler goroutine, and reschedules
// the job onto the slower sweepBackoff cadence. A clean sweep restores the
// normal sweepInterval cadence if the job was backed off.
func (p *Pool) sweepOnce() {
	failed := false
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("sweeper panic recovered, backing off", "panic", r, "backoff", sweepBackoff)
			failed = true
		}
		p.applyBackoff(failed)
	}()

	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	cutoff := p.now().Add(-p.ttl)
	var stale []*handleEntry
	for e := p.order.Back(); e != nil; {
		prev := e.Prev()
		he := e.Value.(*handleEntry)
		if he.lastTouched.Before(cutoff) {
			stale = append(stale, he)
			p.removeLocked(he)
		}
		e = prev
	}
	p.mu.Unlock()

	// Closes are independent per handle; fan them out with errgroup rather
	// than a hand-rolled WaitGroup so a slow close on one file never delays
	// the others, and every close error surfaces for logging.
	var g errgroup.Group
	for _, he := range stale {
		he := he
		g.Go(func() error {
			err := he.reader.Close()
			p.logger.Debug("swept expired handle", "path", he.path, "error", err)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		p.logger.Warn("one or more handle closes failed during sweep, backing off", "error", err, "backoff", sweepBackoff)
		failed = true
	}
}

// applyBackoff reschedules the sweeper job onto sweepBackoff after a failed
// sweep, or back onto the normal sweepInterval once a sweep succeeds again.
// A no-op if the job is already on the requested cadence.
func (p *Pool) applyBackoff(failed bool) {
	p.mu.Lock()
	scheduler := p.scheduler
	job := p.sweeperJob
	alreadyBackedOff := p.backedOff
	p.mu.Unlock()

	if scheduler == nil || job == nil || failed == alreadyBackedOff {
		return
	}

	interval := sweepInterval
	if failed {
		interval = sweepBackoff
	}
	if err := scheduler.RemoveJob(job.ID()); err != nil {
		p.logger.Warn("failed to remove sweeper job for rescheduling", "error", err)
		return
	}
	newJob, err := scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(p.sweepOnce),
		gocron.WithName("handlepool-ttl-sweep"),
	)
	if err != nil {
		p.logger.Error("failed to reschedule sweeper after backoff decision, sweeping stopped", "error", err)
		return
	}

	p.mu.Lock()
	p.sweeperJob = newJob
	p.backedOff = failed
	p.mu.Unlock()
}
