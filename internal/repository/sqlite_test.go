package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lverdier/meteo-vigilance/internal/models"
)

func setupTestDB(t *testing.T) *SQLiteDB {
	db, err := NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteDB_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	result, err := db.Create(ctx, "0696123456", "test@example.com", "Particulier", models.PrefsBoth)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if result.ReferenceCode == "" || !strings.HasPrefix(result.ReferenceCode, "MM-") {
		t.Errorf("expected MM- reference code, got %q", result.ReferenceCode)
	}
	if result.Reactivated {
		t.Error("fresh subscription should not be marked reactivated")
	}

	sub, err := db.GetByPhone(ctx, "0696123456")
	if err != nil {
		t.Fatalf("GetByPhone failed: %v", err)
	}
	if sub.Phone != "+596696123456" {
		t.Errorf("expected normalized phone +596696123456, got %s", sub.Phone)
	}
	if sub.Verified {
		t.Error("new subscription should start unverified")
	}
	if !sub.Active {
		t.Error("new subscription should start active")
	}

	byRef, err := db.GetByReference(ctx, result.ReferenceCode)
	if err != nil {
		t.Fatalf("GetByReference failed: %v", err)
	}
	if byRef.ID != sub.ID {
		t.Errorf("expected same subscriber by reference, got id %d vs %d", byRef.ID, sub.ID)
	}
}

func TestSQLiteDB_CreateInvalidPhone(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Create(context.Background(), "12345", "", "", models.PrefsSMS)
	if !errors.Is(err, ErrInvalidPhone) {
		t.Errorf("expected ErrInvalidPhone, got %v", err)
	}
}

func TestSQLiteDB_CreateDefaultsUnknownProfileAndPrefs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.Create(ctx, "0696111111", "", "Astronaute", "pigeon"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sub, err := db.GetByPhone(ctx, "0696111111")
	if err != nil {
		t.Fatalf("GetByPhone failed: %v", err)
	}
	if sub.Profile != models.DefaultProfile {
		t.Errorf("expected default profile, got %s", sub.Profile)
	}
	if sub.Prefs != models.PrefsSMS {
		t.Errorf("expected sms prefs, got %s", sub.Prefs)
	}
}

func TestSQLiteDB_CreateDuplicateActive(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.Create(ctx, "0696123456", "", "", models.PrefsSMS); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := db.Verify(ctx, "0696123456"); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	_, err := db.Create(ctx, "0696123456", "", "", models.PrefsSMS)
	if !errors.Is(err, ErrAlreadySubscribed) {
		t.Errorf("expected ErrAlreadySubscribed, got %v", err)
	}
}

func TestSQLiteDB_CreateReactivatesUnsubscribed(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first, err := db.Create(ctx, "0696123456", "", "", models.PrefsSMS)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := db.Verify(ctx, "0696123456"); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if _, err := db.Unsubscribe(ctx, "0696123456", ""); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	second, err := db.Create(ctx, "0696123456", "new@example.com", "Tourisme / plages", models.PrefsBoth)
	if err != nil {
		t.Fatalf("reactivating Create failed: %v", err)
	}
	if !second.Reactivated {
		t.Error("expected Reactivated to be true")
	}
	if second.SubscriberID != first.SubscriberID {
		t.Errorf("expected same row reused, got id %d vs %d", second.SubscriberID, first.SubscriberID)
	}
	if second.ReferenceCode == first.ReferenceCode {
		t.Error("reactivation should issue a fresh reference code")
	}

	sub, err := db.GetByPhone(ctx, "0696123456")
	if err != nil {
		t.Fatalf("GetByPhone failed: %v", err)
	}
	if sub.Verified {
		t.Error("reactivated subscription must re-verify")
	}
	if !sub.Active {
		t.Error("reactivated subscription should be active")
	}
	if sub.Profile != "Tourisme / plages" || sub.Prefs != models.PrefsBoth {
		t.Errorf("reactivation should update profile and prefs, got %s/%s", sub.Profile, sub.Prefs)
	}
}

func TestSQLiteDB_Verify(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.Create(ctx, "0696123456", "", "", models.PrefsSMS); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sub, err := db.Verify(ctx, "0696123456")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !sub.Verified {
		t.Error("expected verified subscriber")
	}
	if sub.VerifiedAt == nil {
		t.Error("expected verified_at to be set")
	}

	_, err = db.Verify(ctx, "0696999999")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown phone, got %v", err)
	}
}

func TestSQLiteDB_UnsubscribeByReference(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	result, err := db.Create(ctx, "0696123456", "", "", models.PrefsSMS)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	id, err := db.Unsubscribe(ctx, "", result.ReferenceCode)
	if err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if id != result.SubscriberID {
		t.Errorf("expected id %d, got %d", result.SubscriberID, id)
	}

	// Second unsubscribe finds no active row
	_, err = db.Unsubscribe(ctx, "", result.ReferenceCode)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on repeat unsubscribe, got %v", err)
	}

	sub, err := db.GetByPhone(ctx, "0696123456")
	if err != nil {
		t.Fatalf("GetByPhone failed: %v", err)
	}
	if sub.Active {
		t.Error("expected inactive subscription")
	}
	if sub.UnsubscribedAt == nil {
		t.Error("expected unsubscribed_at to be set")
	}
}

func TestSQLiteDB_UpdateProfile(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.Create(ctx, "0696123456", "", "", models.PrefsSMS); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := db.UpdateProfile(ctx, "0696123456", "Nautique / pêche / plaisance"); err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}

	sub, _ := db.GetByPhone(ctx, "0696123456")
	if sub.Profile != "Nautique / pêche / plaisance" {
		t.Errorf("expected updated profile, got %s", sub.Profile)
	}

	if err := db.UpdateProfile(ctx, "0696123456", "Astronaute"); err == nil {
		t.Error("expected error for invalid profile")
	}
	if err := db.UpdateProfile(ctx, "0696999999", models.DefaultProfile); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteDB_ListActiveVerified(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// verified+active, unverified, and unsubscribed
	db.Create(ctx, "0696000001", "", "", models.PrefsSMS)
	db.Verify(ctx, "0696000001")
	db.Create(ctx, "0696000002", "", "", models.PrefsSMS)
	db.Create(ctx, "0696000003", "", "", models.PrefsSMS)
	db.Verify(ctx, "0696000003")
	db.Unsubscribe(ctx, "0696000003", "")

	subs, err := db.ListActiveVerified(ctx)
	if err != nil {
		t.Fatalf("ListActiveVerified failed: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected 1 active verified subscriber, got %d", len(subs))
	}
	if subs[0].Phone != "+596696000001" {
		t.Errorf("unexpected subscriber %s", subs[0].Phone)
	}
}

func TestSQLiteDB_Stats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	db.Create(ctx, "0696000001", "", "Particulier", models.PrefsSMS)
	db.Verify(ctx, "0696000001")
	db.Create(ctx, "0696000002", "", "Tourisme / plages", models.PrefsSMS)

	db.LogAlert(ctx, &models.AlertRecord{
		SubscriberID:   1,
		PhenomenonType: "Wind",
		ColorCode:      models.ColorOrange,
		Channel:        "sms",
		DeliveryStatus: "sent",
	})

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalSubscribers != 2 {
		t.Errorf("expected 2 total subscribers, got %d", stats.TotalSubscribers)
	}
	if stats.ActiveVerified != 1 {
		t.Errorf("expected 1 active verified, got %d", stats.ActiveVerified)
	}
	if stats.PendingVerification != 1 {
		t.Errorf("expected 1 pending, got %d", stats.PendingVerification)
	}
	if stats.TotalAlertsSent != 1 {
		t.Errorf("expected 1 alert sent, got %d", stats.TotalAlertsSent)
	}
	if stats.ByProfile["Particulier"] != 1 {
		t.Errorf("expected 1 Particulier, got %d", stats.ByProfile["Particulier"])
	}
}

func TestSQLiteDB_AlertHistory(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		err := db.LogAlert(ctx, &models.AlertRecord{
			SubscriberID:      1,
			PhenomenonType:    "Rain-Flood",
			ColorCode:         models.ColorOrange,
			Message:           "Alert: Rain-Flood",
			Channel:           "sms",
			DeliveryStatus:    "sent",
			ProviderMessageID: "msg-1",
			SentAt:            now.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("LogAlert failed: %v", err)
		}
	}
	db.LogAlert(ctx, &models.AlertRecord{
		SubscriberID:   2,
		PhenomenonType: "Wind",
		ColorCode:      models.ColorRed,
		Channel:        "email",
	})

	records, err := db.ListHistory(ctx, 1, 0)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records for subscriber 1, got %d", len(records))
	}
	// Newest first
	if !records[0].SentAt.After(records[2].SentAt) {
		t.Error("expected history sorted newest first")
	}

	all, err := db.ListHistory(ctx, 0, 2)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected limit 2 applied, got %d", len(all))
	}
}

func TestSQLiteDB_AlertStateRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	state, err := db.LoadAlertState(ctx)
	if err != nil {
		t.Fatalf("LoadAlertState failed: %v", err)
	}
	if len(state) != 0 {
		t.Errorf("expected empty initial state, got %v", state)
	}

	want := map[string]int{"Wind": models.ColorOrange, "Rain-Flood": models.ColorYellow}
	if err := db.SaveAlertState(ctx, want); err != nil {
		t.Fatalf("SaveAlertState failed: %v", err)
	}

	got, err := db.LoadAlertState(ctx)
	if err != nil {
		t.Fatalf("LoadAlertState failed: %v", err)
	}
	if len(got) != 2 || got["Wind"] != models.ColorOrange || got["Rain-Flood"] != models.ColorYellow {
		t.Errorf("state round trip mismatch: %v", got)
	}

	// Save replaces, not merges
	if err := db.SaveAlertState(ctx, map[string]int{}); err != nil {
		t.Fatalf("SaveAlertState failed: %v", err)
	}
	got, _ = db.LoadAlertState(ctx)
	if len(got) != 0 {
		t.Errorf("expected cleared state, got %v", got)
	}
}

func TestSQLiteDB_Snapshots(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	snap, err := db.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("LatestSnapshot failed: %v", err)
	}
	if snap != nil {
		t.Error("expected nil snapshot on empty table")
	}

	first := &models.Snapshot{
		FetchedAt: time.Now().UTC(),
		Domain:    "972",
		MaxColor:  models.ColorYellow,
		Phenomena: []models.Phenomenon{{Type: "Wind", ColorCode: models.ColorYellow}},
	}
	if err := db.SaveSnapshot(ctx, first); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	second := &models.Snapshot{FetchedAt: time.Now().UTC(), Domain: "972", MaxColor: models.ColorOrange}
	if err := db.SaveSnapshot(ctx, second); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	got, err := db.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("LatestSnapshot failed: %v", err)
	}
	if got == nil || got.MaxColor != models.ColorOrange {
		t.Errorf("expected latest snapshot with max color orange, got %+v", got)
	}
}
