// Package alert implements the vigilance alert engine: deciding which
// phenomena warrant a broadcast (dedup ratchet), fanning alerts out to
// subscribers over their preferred channels, and orchestrating the periodic
// check-and-broadcast cycle.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lverdier/meteo-vigilance/internal/config"
	"github.com/lverdier/meteo-vigilance/internal/delivery"
	"github.com/lverdier/meteo-vigilance/internal/models"
	"github.com/lverdier/meteo-vigilance/internal/observability"
	"github.com/lverdier/meteo-vigilance/internal/worker"
)

// Cycle status values, part of the CycleSummary JSON contract.
const (
	StatusNoData     = "no_data"
	StatusNoAlerts   = "no_alerts"
	StatusAlertsSent = "alerts_sent"
)

// SnapshotProvider yields the current vigilance snapshot. A nil snapshot or
// an error both mean "no data".
type SnapshotProvider interface {
	CurrentSnapshot(ctx context.Context) (*models.Snapshot, error)
}

// Directory is the slice of the contact directory the engine consumes: the
// active+verified subscriber set and the append-only alert history.
type Directory interface {
	ListActiveVerified(ctx context.Context) ([]models.Subscriber, error)
	LogAlert(ctx context.Context, rec *models.AlertRecord) error
}

// StateStore persists the dedup ratchet between processes.
type StateStore interface {
	LoadAlertState(ctx context.Context) (map[string]int, error)
	SaveAlertState(ctx context.Context, state map[string]int) error
}

// SendError is a redacted per-delivery failure descriptor.
type SendError struct {
	Contact string `json:"contact"`
	Error   string `json:"error"`
}

// BroadcastResult aggregates one phenomenon's fan-out. Sent and Failed count
// individual channel deliveries, not subscribers.
type BroadcastResult struct {
	Phenomenon string      `json:"phenomenon"`
	Color      int         `json:"color"`
	Sent       int         `json:"sent"`
	Failed     int         `json:"failed"`
	Errors     []SendError `json:"errors"`
}

// CycleSummary is the stable contract returned to the scheduler and the
// manual-trigger endpoint.
type CycleSummary struct {
	Status      string            `json:"status"`
	TotalSent   int               `json:"total_sent"`
	TotalFailed int               `json:"total_failed"`
	Broadcasts  []BroadcastResult `json:"broadcasts"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Engine owns the alert state ratchet. It is driven by one caller at a time:
// the scheduler serializes cycles, and the manual trigger endpoint shares the
// same serialization (see scheduler.Runner).
type Engine struct {
	provider SnapshotProvider
	dir      Directory
	states   StateStore
	sms      delivery.Channel
	email    delivery.Channel
	pool     *worker.Pool
	metrics  *observability.Metrics
	cfg      config.AlertConfig

	// AlertHook, when set, receives every BroadcastResult as it completes.
	// Used to feed the live SSE stream.
	AlertHook func(BroadcastResult)

	state map[string]int
}

func NewEngine(
	provider SnapshotProvider,
	dir Directory,
	states StateStore,
	sms, email delivery.Channel,
	workers int,
	metrics *observability.Metrics,
	cfg config.AlertConfig,
) *Engine {
	return &Engine{
		provider: provider,
		dir:      dir,
		states:   states,
		sms:      sms,
		email:    email,
		pool:     worker.NewPool(workers),
		metrics:  metrics,
		cfg:      cfg,
		state:    make(map[string]int),
	}
}

// LoadState restores the persisted ratchet. Called once at process start;
// without it the engine starts from an empty state, which only risks one
// duplicate broadcast per phenomenon.
func (e *Engine) LoadState(ctx context.Context) error {
	state, err := e.states.LoadAlertState(ctx)
	if err != nil {
		return fmt.Errorf("loading alert state: %w", err)
	}
	e.state = state
	return nil
}

// State returns a copy of the current ratchet, for inspection endpoints.
func (e *Engine) State() map[string]int {
	out := make(map[string]int, len(e.state))
	for k, v := range e.state {
		out[k] = v
	}
	return out
}

// SelectAlertable returns the phenomena that warrant a new broadcast: at or
// above threshold AND strictly above the last color already broadcast for
// that type. Absent state entries count as Green. A color decrease never
// triggers and never updates state.
func SelectAlertable(snap *models.Snapshot, state map[string]int, threshold int) []models.Phenomenon {
	var alertable []models.Phenomenon
	for _, ph := range snap.Phenomena {
		if ph.ColorCode < threshold {
			continue
		}
		prev, ok := state[ph.Type]
		if !ok {
			prev = models.ColorGreen
		}
		if ph.ColorCode > prev {
			alertable = append(alertable, ph)
		}
	}
	return alertable
}

// CheckAndBroadcast runs one full cycle: fetch snapshot, select alertable
// phenomena, broadcast each, advance the ratchet, persist state once.
//
// The returned error is reserved for unrecoverable store failures; delivery
// failures and missing data are reported through the summary.
func (e *Engine) CheckAndBroadcast(ctx context.Context) (*CycleSummary, error) {
	start := time.Now()
	summary := &CycleSummary{Status: StatusNoData, Timestamp: start.UTC()}

	defer func() {
		e.metrics.CyclesTotal.WithLabelValues(summary.Status).Inc()
		e.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	snap, err := e.provider.CurrentSnapshot(ctx)
	if err != nil || snap == nil {
		if err != nil {
			slog.Warn("vigilance snapshot unavailable", "error", err)
		} else {
			slog.Warn("no vigilance snapshot available")
		}
		return summary, nil
	}

	alertable := SelectAlertable(snap, e.state, e.cfg.Threshold)
	if len(alertable) == 0 {
		slog.Info("no new alerts to broadcast", "max_color", snap.MaxColor)
		summary.Status = StatusNoAlerts
		return summary, nil
	}

	for _, ph := range alertable {
		description := defaultDescription(ph.ColorCode)

		result, err := e.Broadcast(ctx, ph, description, "")
		if err != nil {
			return nil, err
		}

		if !e.cfg.RatchetRequireSuccess || result.Sent > 0 {
			e.state[ph.Type] = ph.ColorCode
		}

		summary.TotalSent += result.Sent
		summary.TotalFailed += result.Failed
		summary.Broadcasts = append(summary.Broadcasts, *result)

		if e.AlertHook != nil {
			e.AlertHook(*result)
		}
	}

	// One state write per cycle. A failure here loses the ratchet advance for
	// the next process start, which at worst repeats a broadcast.
	if err := e.states.SaveAlertState(ctx, e.state); err != nil {
		slog.Error("failed to persist alert state", "error", err)
	}

	summary.Status = StatusAlertsSent
	summary.Timestamp = time.Now().UTC()
	return summary, nil
}

// ResetState clears the ratchet so every phenomenon at or above threshold
// becomes alertable again. Idempotent; used for manual intervention.
func (e *Engine) ResetState(ctx context.Context) error {
	e.state = make(map[string]int)
	if err := e.states.SaveAlertState(ctx, e.state); err != nil {
		return fmt.Errorf("resetting alert state: %w", err)
	}
	slog.Info("alert state reset")
	return nil
}
