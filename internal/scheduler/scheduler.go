// Package scheduler drives the periodic vigilance cycle. One goroutine owns
// the cycle cadence, so cycles never overlap; the manual trigger endpoint
// shares the same mutex and is serialized with the timer.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lverdier/meteo-vigilance/internal/alert"
	"github.com/lverdier/meteo-vigilance/internal/models"
	"github.com/lverdier/meteo-vigilance/internal/otp"
	"github.com/lverdier/meteo-vigilance/internal/repository"
)

// SnapshotFetcher refreshes dashboard data outside the alert cycle.
type SnapshotFetcher interface {
	CurrentSnapshot(ctx context.Context) (*models.Snapshot, error)
}

type Runner struct {
	engine    *alert.Engine
	fetcher   SnapshotFetcher
	snapshots repository.SnapshotRepository
	verifier  *otp.Service
	clock     clockwork.Clock

	checkInterval    time.Duration
	snapshotInterval time.Duration

	mu sync.Mutex
	wg sync.WaitGroup
}

func New(
	engine *alert.Engine,
	fetcher SnapshotFetcher,
	snapshots repository.SnapshotRepository,
	verifier *otp.Service,
	clock clockwork.Clock,
	checkInterval, snapshotInterval time.Duration,
) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Runner{
		engine:           engine,
		fetcher:          fetcher,
		snapshots:        snapshots,
		verifier:         verifier,
		clock:            clock,
		checkInterval:    checkInterval,
		snapshotInterval: snapshotInterval,
	}
}

func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.runCycleLoop(ctx)

	if r.fetcher != nil && r.snapshots != nil {
		r.wg.Add(1)
		go r.runSnapshotLoop(ctx)
	}
}

// Stop blocks until the loops have exited. Call after cancelling the context
// passed to Start.
func (r *Runner) Stop() {
	r.wg.Wait()
	slog.Info("scheduler stopped")
}

// RunCycle executes one check-and-broadcast cycle. It is the only path into
// the engine, guarded so the timer and the manual trigger never run
// concurrently.
func (r *Runner) RunCycle(ctx context.Context) (*alert.CycleSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.CheckAndBroadcast(ctx)
}

// ResetState clears the engine's dedup state through the same serialization
// as the cycles.
func (r *Runner) ResetState(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.ResetState(ctx)
}

func (r *Runner) runCycleLoop(ctx context.Context) {
	defer r.wg.Done()
	slog.Info("starting vigilance cycle loop", "interval", r.checkInterval)

	ticker := r.clock.NewTicker(r.checkInterval)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("vigilance cycle loop shutting down")
			return
		case <-ticker.Chan():
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if r.verifier != nil {
		r.verifier.CleanupExpired()
	}

	summary, err := r.RunCycle(ctx)
	if err != nil {
		slog.Error("vigilance cycle failed", "error", err)
		return
	}
	slog.Info("vigilance cycle complete",
		"status", summary.Status,
		"sent", summary.TotalSent,
		"failed", summary.TotalFailed,
	)
}

func (r *Runner) runSnapshotLoop(ctx context.Context) {
	defer r.wg.Done()
	slog.Info("starting snapshot refresh loop", "interval", r.snapshotInterval)

	ticker := r.clock.NewTicker(r.snapshotInterval)
	defer ticker.Stop()

	r.refreshSnapshot(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("snapshot refresh loop shutting down")
			return
		case <-ticker.Chan():
			r.refreshSnapshot(ctx)
		}
	}
}

func (r *Runner) refreshSnapshot(ctx context.Context) {
	snap, err := r.fetcher.CurrentSnapshot(ctx)
	if err != nil {
		slog.Warn("snapshot refresh failed", "error", err)
		return
	}
	if err := r.snapshots.SaveSnapshot(ctx, snap); err != nil {
		slog.Error("failed to persist snapshot", "error", err)
	}
}
