package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/goleak"

	"github.com/lverdier/meteo-vigilance/internal/alert"
	"github.com/lverdier/meteo-vigilance/internal/config"
	"github.com/lverdier/meteo-vigilance/internal/delivery"
	"github.com/lverdier/meteo-vigilance/internal/models"
	"github.com/lverdier/meteo-vigilance/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingProvider struct {
	calls atomic.Int64
	snap  *models.Snapshot
}

func (p *countingProvider) CurrentSnapshot(ctx context.Context) (*models.Snapshot, error) {
	p.calls.Add(1)
	return p.snap, nil
}

type nopDirectory struct{}

func (nopDirectory) ListActiveVerified(ctx context.Context) ([]models.Subscriber, error) {
	return nil, nil
}
func (nopDirectory) LogAlert(ctx context.Context, rec *models.AlertRecord) error { return nil }

type memStateStore struct{}

func (memStateStore) LoadAlertState(ctx context.Context) (map[string]int, error) {
	return make(map[string]int), nil
}
func (memStateStore) SaveAlertState(ctx context.Context, state map[string]int) error { return nil }

type countingSnapshots struct {
	saves atomic.Int64
}

func (s *countingSnapshots) SaveSnapshot(ctx context.Context, snap *models.Snapshot) error {
	s.saves.Add(1)
	return nil
}
func (s *countingSnapshots) LatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	return nil, nil
}

type nopChannel struct{ name string }

func (c nopChannel) Name() string { return c.name }
func (c nopChannel) Send(ctx context.Context, recipient string, msg delivery.Message) (string, error) {
	return "nop", nil
}

func newTestEngine(provider alert.SnapshotProvider) *alert.Engine {
	return alert.NewEngine(provider, nopDirectory{}, memStateStore{},
		nopChannel{name: "sms"}, nopChannel{name: "email"}, 1,
		observability.NewMetricsForTesting(),
		config.AlertConfig{Threshold: models.ColorYellow})
}

// waitFor polls cond with a real-time deadline; the fake clock never advances
// on its own.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRunner_ManualCycleWithoutStart(t *testing.T) {
	provider := &countingProvider{}
	r := New(newTestEngine(provider), nil, nil, nil, clockwork.NewFakeClock(), time.Minute, time.Hour)

	summary, err := r.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if summary.Status != alert.StatusNoData {
		t.Errorf("expected no_data for nil snapshot, got %s", summary.Status)
	}
	if provider.calls.Load() != 1 {
		t.Errorf("expected 1 provider call, got %d", provider.calls.Load())
	}
}

func TestRunner_CycleLoopTicks(t *testing.T) {
	provider := &countingProvider{}
	clock := clockwork.NewFakeClock()
	r := New(newTestEngine(provider), nil, nil, nil, clock, 30*time.Minute, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)

	// Initial cycle runs before the first tick
	waitFor(t, func() bool { return provider.calls.Load() == 1 }, "initial cycle never ran")

	clock.BlockUntil(1)
	clock.Advance(30 * time.Minute)
	waitFor(t, func() bool { return provider.calls.Load() == 2 }, "ticker cycle never ran")

	cancel()
	r.Stop()
}

func TestRunner_SnapshotLoop(t *testing.T) {
	provider := &countingProvider{}
	fetcher := &countingProvider{snap: &models.Snapshot{Domain: "972", MaxColor: models.ColorGreen}}
	snapshots := &countingSnapshots{}
	clock := clockwork.NewFakeClock()

	r := New(newTestEngine(provider), fetcher, snapshots, nil, clock, time.Hour, 10*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)

	waitFor(t, func() bool { return snapshots.saves.Load() == 1 }, "initial snapshot refresh never ran")

	clock.BlockUntil(2)
	clock.Advance(10 * time.Minute)
	waitFor(t, func() bool { return snapshots.saves.Load() == 2 }, "snapshot refresh tick never ran")

	cancel()
	r.Stop()
}

func TestRunner_ResetState(t *testing.T) {
	provider := &countingProvider{}
	r := New(newTestEngine(provider), nil, nil, nil, clockwork.NewFakeClock(), time.Minute, time.Hour)

	if err := r.ResetState(context.Background()); err != nil {
		t.Fatalf("ResetState failed: %v", err)
	}
}

func TestRunner_StopAfterCancelReturns(t *testing.T) {
	provider := &countingProvider{}
	clock := clockwork.NewFakeClock()
	r := New(newTestEngine(provider), nil, nil, nil, clock, time.Minute, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after cancel")
	}
}
