package decay

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pltm/engine/internal/clock"
	"github.com/pltm/engine/internal/model"
	"github.com/pltm/engine/internal/storage"
)

// Config holds the decay-engine tunables from decay.* configuration keys.
type Config struct {
	IntervalHours         int
	DissolveThreshold     float64
	ReconsolidateThreshold float64
	// SweepWorkers bounds the concurrency of the dissolution sweep, mirroring
	// the bounded-concurrency backfill pattern used elsewhere in the engine.
	SweepWorkers int
}

// DefaultConfig matches the documented defaults for decay.* keys.
func DefaultConfig() Config {
	return Config{
		IntervalHours:          6,
		DissolveThreshold:      0.1,
		ReconsolidateThreshold: 0.5,
		SweepWorkers:           4,
	}
}

// Engine runs the background dissolution sweep and exposes the on-demand
// decay operations (decay_stability, decay_run) used by the RPC surface.
//
// The scheduled sweep (every IntervalHours) is authoritative for
// dissolution: it is the only path that scans the full UNSUBSTANTIATED set.
// The idle trigger (fired after 5 minutes of write inactivity) only runs a
// cheap stability refresh over SUBSTANTIATED atoms accessed within the last
// 5 minutes — see DESIGN.md Open Question 4.
type Engine struct {
	db     *storage.DB
	clock  clock.Clock
	logger *slog.Logger
	cfg    Config

	idleTrigger chan struct{}
	idleTimer   *time.Timer
	idleMu      sync.Mutex

	started  atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
	drainCh  chan context.Context
	drainOne sync.Once
}

const idleQuiet = 5 * time.Minute

// New constructs an Engine.
func New(db *storage.DB, clk clock.Clock, logger *slog.Logger, cfg Config) *Engine {
	return &Engine{
		db:          db,
		clock:       clk,
		logger:      logger,
		cfg:         cfg,
		idleTrigger: make(chan struct{}, 1),
		done:        make(chan struct{}),
		drainCh:     make(chan context.Context, 1),
	}
}

// Touch records write activity, resetting the idle-trigger countdown. Call
// this from every Store write path.
func (e *Engine) Touch() {
	e.idleMu.Lock()
	defer e.idleMu.Unlock()
	if e.idleTimer == nil {
		return
	}
	e.idleTimer.Reset(idleQuiet)
}

// Start launches the background worker. Safe to call once; subsequent
// calls are no-ops.
func (e *Engine) Start(ctx context.Context) {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.idleMu.Lock()
	e.idleTimer = time.NewTimer(idleQuiet)
	e.idleMu.Unlock()

	go e.loop(ctx)
}

// Drain stops the background worker, waiting for any in-flight sweep to
// finish, mirroring the outbox worker's graceful-shutdown contract.
func (e *Engine) Drain(ctx context.Context) {
	e.drainOne.Do(func() {
		select {
		case e.drainCh <- ctx:
		case <-time.After(100 * time.Millisecond):
		}
		if e.cancel != nil {
			e.cancel()
		}
	})
	select {
	case <-e.done:
	case <-ctx.Done():
		e.logger.Warn("decay: drain timed out waiting for worker shutdown")
	}
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(time.Duration(e.cfg.IntervalHours) * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.drainCh:
			return
		case <-ticker.C:
			if _, err := e.RunDissolution(ctx, ""); err != nil {
				e.logger.Warn("decay: scheduled sweep failed", "error", err)
			}
		case <-e.idleTimerC():
			if err := e.runIdleRefresh(ctx); err != nil {
				e.logger.Warn("decay: idle refresh failed", "error", err)
			}
		}
	}
}

func (e *Engine) idleTimerC() <-chan time.Time {
	e.idleMu.Lock()
	defer e.idleMu.Unlock()
	if e.idleTimer == nil {
		return nil
	}
	return e.idleTimer.C
}

// RunDissolution scans every UNSUBSTANTIATED atom for sourceUser (or every
// caller, when sourceUser is empty — the scheduled path), computes current
// stability, and deletes atoms that fall below DissolveThreshold.
func (e *Engine) RunDissolution(ctx context.Context, sourceUser string) (model.DecayRunResult, error) {
	atoms, err := e.db.GetByGraph(ctx, sourceUser, model.GraphUnsubstantiated, 0)
	if err != nil {
		return model.DecayRunResult{}, err
	}

	var result model.DecayRunResult
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, e.cfg.SweepWorkers))

	for _, a := range atoms {
		a := a
		g.Go(func() error {
			mu.Lock()
			result.Scanned++
			mu.Unlock()

			stability := Stability(a, e.clock.Now())
			if stability >= e.cfg.DissolveThreshold {
				return nil
			}
			if err := e.db.Delete(gctx, a.ID); err != nil && model.KindOf(err) != model.NotFound {
				return err
			}
			mu.Lock()
			result.Dissolved++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

// runIdleRefresh recomputes stability for recently accessed SUBSTANTIATED
// atoms without deleting anything; it exists so a quiet period shortly
// after a burst of writes still reflects fresh stability numbers to
// retrieval without waiting for the next scheduled sweep.
func (e *Engine) runIdleRefresh(ctx context.Context) error {
	atoms, err := e.db.GetByGraph(ctx, "", model.GraphSubstantiated, 500)
	if err != nil {
		return err
	}
	now := e.clock.Now()
	for _, a := range atoms {
		if now.Sub(a.LastAccessed) > idleQuiet {
			continue
		}
		_ = Stability(a, now) // computed for side-effect-free freshness; no write needed here
	}
	return nil
}
