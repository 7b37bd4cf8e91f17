package repository

import (
	"context"
	"errors"

	"github.com/lverdier/meteo-vigilance/internal/models"
)

var (
	// ErrAlreadySubscribed is returned by Create when the phone already has an
	// active, verified subscription.
	ErrAlreadySubscribed = errors.New("phone already subscribed")
	// ErrNotFound is returned when no matching subscriber row exists.
	ErrNotFound = errors.New("subscription not found")
	// ErrInvalidPhone is returned when a phone number cannot be normalized.
	ErrInvalidPhone = errors.New("invalid phone number")
)

// CreateResult describes the outcome of a subscription create call.
type CreateResult struct {
	SubscriberID  int64
	ReferenceCode string
	// Reactivated is true when an inactive or unverified row for the same
	// phone was reused instead of inserting a new one.
	Reactivated bool
}

// SubscriberRepository is the contact directory: subscriber rows and their
// lifecycle transitions.
type SubscriberRepository interface {
	Create(ctx context.Context, phone, email, profile string, prefs models.NotificationPrefs) (*CreateResult, error)
	Verify(ctx context.Context, phone string) (*models.Subscriber, error)
	Unsubscribe(ctx context.Context, phone, referenceCode string) (int64, error)
	GetByPhone(ctx context.Context, phone string) (*models.Subscriber, error)
	GetByReference(ctx context.Context, referenceCode string) (*models.Subscriber, error)
	UpdateProfile(ctx context.Context, phone, profile string) error
	ListActiveVerified(ctx context.Context) ([]models.Subscriber, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

// HistoryRepository records delivered alerts. Rows are append-only.
type HistoryRepository interface {
	LogAlert(ctx context.Context, rec *models.AlertRecord) error
	ListHistory(ctx context.Context, subscriberID int64, limit int) ([]models.AlertRecord, error)
}

// StateRepository persists the dedup ratchet: last broadcast color per
// phenomenon type. Absent keys are implicitly Green.
type StateRepository interface {
	LoadAlertState(ctx context.Context) (map[string]int, error)
	SaveAlertState(ctx context.Context, state map[string]int) error
}

// SnapshotRepository keeps the latest fetched vigilance snapshot for the
// dashboard endpoints.
type SnapshotRepository interface {
	SaveSnapshot(ctx context.Context, snap *models.Snapshot) error
	LatestSnapshot(ctx context.Context) (*models.Snapshot, error)
}
