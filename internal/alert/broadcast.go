package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lverdier/meteo-vigilance/internal/delivery"
	"github.com/lverdier/meteo-vigilance/internal/models"
	"github.com/lverdier/meteo-vigilance/internal/repository"
	"github.com/lverdier/meteo-vigilance/internal/worker"
)

// Broadcast delivers one phenomenon's alert to every active+verified
// subscriber over the channels their prefs select. Each channel delivery is
// independent: one failure never blocks other subscribers or the subscriber's
// other channel. History rows are appended only for successful sends.
//
// The error return is reserved for the directory being unreadable; delivery
// failures are aggregated into the result.
func (e *Engine) Broadcast(ctx context.Context, ph models.Phenomenon, description, intensity string) (*BroadcastResult, error) {
	result := &BroadcastResult{Phenomenon: ph.Type, Color: ph.ColorCode}

	subscribers, err := e.dir.ListActiveVerified(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing subscribers: %w", err)
	}
	e.metrics.Subscribers.Set(float64(len(subscribers)))

	if len(subscribers) == 0 {
		slog.Info("no active subscribers to alert", "phenomenon", ph.Type)
		return result, nil
	}

	slog.Info("broadcasting alert",
		"phenomenon", ph.Type,
		"color", ph.ColorCode,
		"subscribers", len(subscribers),
	)

	var mu sync.Mutex
	tasks := make([]worker.Task, 0, len(subscribers))
	for _, sub := range subscribers {
		sub := sub
		tasks = append(tasks, func(ctx context.Context) {
			sent, failed, errs := e.deliverTo(ctx, sub, ph, description, intensity)
			mu.Lock()
			result.Sent += sent
			result.Failed += failed
			result.Errors = append(result.Errors, errs...)
			mu.Unlock()
		})
	}

	e.pool.Run(ctx, tasks)

	slog.Info("broadcast complete",
		"phenomenon", ph.Type,
		"sent", result.Sent,
		"failed", result.Failed,
	)
	return result, nil
}

// deliverTo sends one subscriber's alert on every channel their prefs enable.
// Counting is per channel: a "both" subscriber can contribute one success and
// one failure to the same broadcast.
func (e *Engine) deliverTo(ctx context.Context, sub models.Subscriber, ph models.Phenomenon, description, intensity string) (sent, failed int, errs []SendError) {
	type attempt struct {
		channel   delivery.Channel
		recipient string
		msg       delivery.Message
	}

	var attempts []attempt
	if sub.Prefs.WantsSMS() && sub.Phone != "" {
		attempts = append(attempts, attempt{
			channel:   e.sms,
			recipient: sub.Phone,
			msg:       delivery.Message{Body: FormatSMS(ph.Type, ph.ColorCode, sub.Profile, description, intensity)},
		})
	}
	if sub.Prefs.WantsEmail() && sub.Email != "" {
		subject, html := FormatEmail(ph.Type, ph.ColorCode, sub.Profile, description, intensity)
		attempts = append(attempts, attempt{
			channel:   e.email,
			recipient: sub.Email,
			msg:       delivery.Message{Subject: subject, Body: html},
		})
	}

	for _, a := range attempts {
		providerID, err := e.send(ctx, a.channel, a.recipient, a.msg)
		if err != nil {
			failed++
			errs = append(errs, SendError{
				Contact: repository.RedactContact(a.recipient),
				Error:   err.Error(),
			})
			e.metrics.AlertsFailed.WithLabelValues(a.channel.Name()).Inc()
			slog.Error("failed to send alert",
				"subscriber", sub.ID,
				"channel", a.channel.Name(),
				"error", err,
			)
			continue
		}

		sent++
		e.metrics.AlertsSent.WithLabelValues(a.channel.Name()).Inc()

		rec := &models.AlertRecord{
			SubscriberID:      sub.ID,
			PhenomenonType:    ph.Type,
			ColorCode:         ph.ColorCode,
			Message:           fmt.Sprintf("Alert: %s", ph.Type),
			Channel:           a.channel.Name(),
			DeliveryStatus:    "sent",
			ProviderMessageID: providerID,
			SentAt:            time.Now().UTC(),
		}
		if err := e.dir.LogAlert(ctx, rec); err != nil {
			// The alert went out; a history write failure only loses the
			// audit row.
			slog.Error("failed to log alert history", "subscriber", sub.ID, "error", err)
		}
	}

	return sent, failed, errs
}

// send wraps a channel call with the per-delivery timeout and converts panics
// from a misbehaving transport into an ordinary error, keeping failures
// isolated at the subscriber boundary.
func (e *Engine) send(ctx context.Context, ch delivery.Channel, recipient string, msg delivery.Message) (providerID string, err error) {
	timeout := e.cfg.SendTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel %s panicked: %v", ch.Name(), r)
		}
	}()

	return ch.Send(sendCtx, recipient, msg)
}
