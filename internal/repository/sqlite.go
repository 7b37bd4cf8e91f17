package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lverdier/meteo-vigilance/internal/models"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Single writer connection to avoid SQLITE_BUSY between the cycle and the
	// HTTP handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error applying pragmas: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS subscribers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			phone_number TEXT UNIQUE NOT NULL,
			email TEXT DEFAULT '',
			profile TEXT NOT NULL DEFAULT 'Particulier',
			notification_prefs TEXT NOT NULL DEFAULT 'sms',
			reference_code TEXT UNIQUE NOT NULL,
			verified BOOLEAN NOT NULL DEFAULT FALSE,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TEXT NOT NULL,
			verified_at TEXT,
			unsubscribed_at TEXT
		);

		CREATE TABLE IF NOT EXISTS alert_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subscriber_id INTEGER NOT NULL,
			phenomenon_type TEXT NOT NULL,
			color_code INTEGER NOT NULL,
			message TEXT,
			channel TEXT NOT NULL DEFAULT 'sms',
			delivery_status TEXT,
			provider_message_id TEXT,
			sent_at TEXT NOT NULL,
			FOREIGN KEY (subscriber_id) REFERENCES subscribers(id)
		);

		CREATE TABLE IF NOT EXISTS alert_state (
			phenomenon_type TEXT PRIMARY KEY,
			color_code INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS vigilance_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fetched_at TEXT NOT NULL,
			domain TEXT NOT NULL,
			max_color INTEGER NOT NULL,
			payload TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_subscribers_phone ON subscribers(phone_number);
		CREATE INDEX IF NOT EXISTS idx_subscribers_active ON subscribers(active, verified);
		CREATE INDEX IF NOT EXISTS idx_subscribers_ref ON subscribers(reference_code);
		CREATE INDEX IF NOT EXISTS idx_history_subscriber ON alert_history(subscriber_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// generateReferenceCode returns a short public subscription id (MM-XXXXXX).
func generateReferenceCode() string {
	buf := make([]byte, 3)
	rand.Read(buf)
	return "MM-" + strings.ToUpper(hex.EncodeToString(buf))
}

func (s *SQLiteDB) Create(ctx context.Context, phone, email, profile string, prefs models.NotificationPrefs) (*CreateResult, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil, ErrInvalidPhone
	}
	if !models.ValidProfile(profile) {
		profile = models.DefaultProfile
	}
	if !prefs.Valid() {
		prefs = models.PrefsSMS
	}

	refCode := generateReferenceCode()

	var (
		id       int64
		active   bool
		verified bool
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, active, verified FROM subscribers WHERE phone_number = ?",
		normalized,
	).Scan(&id, &active, &verified)

	switch {
	case err == sql.ErrNoRows:
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO subscribers (phone_number, email, profile, notification_prefs, reference_code, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			normalized, email, profile, string(prefs), refCode, time.Now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			return nil, fmt.Errorf("error inserting subscriber: %w", err)
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("error reading insert id: %w", err)
		}
		return &CreateResult{SubscriberID: newID, ReferenceCode: refCode}, nil

	case err != nil:
		return nil, fmt.Errorf("error looking up subscriber: %w", err)
	}

	if active && verified {
		return &CreateResult{SubscriberID: id}, ErrAlreadySubscribed
	}

	// Inactive or unverified row for this phone: reuse it with a fresh code.
	_, err = s.db.ExecContext(ctx,
		`UPDATE subscribers
		 SET email = ?, profile = ?, notification_prefs = ?, active = TRUE, verified = FALSE,
		     reference_code = ?, unsubscribed_at = NULL
		 WHERE phone_number = ?`,
		email, profile, string(prefs), refCode, normalized,
	)
	if err != nil {
		return nil, fmt.Errorf("error reactivating subscriber: %w", err)
	}
	return &CreateResult{SubscriberID: id, ReferenceCode: refCode, Reactivated: true}, nil
}

func (s *SQLiteDB) Verify(ctx context.Context, phone string) (*models.Subscriber, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil, ErrInvalidPhone
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE subscribers SET verified = TRUE, verified_at = ?
		 WHERE phone_number = ? AND active = TRUE`,
		time.Now().UTC().Format(time.RFC3339), normalized,
	)
	if err != nil {
		return nil, fmt.Errorf("error verifying subscriber: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("error reading affected rows: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	return s.GetByPhone(ctx, normalized)
}

func (s *SQLiteDB) Unsubscribe(ctx context.Context, phone, referenceCode string) (int64, error) {
	var (
		row *sql.Row
		ts  = time.Now().UTC().Format(time.RFC3339)
	)

	switch {
	case phone != "":
		normalized := NormalizePhone(phone)
		if normalized == "" {
			return 0, ErrInvalidPhone
		}
		row = s.db.QueryRowContext(ctx,
			`UPDATE subscribers SET active = FALSE, unsubscribed_at = ?
			 WHERE phone_number = ? AND active = TRUE
			 RETURNING id`,
			ts, normalized,
		)
	case referenceCode != "":
		row = s.db.QueryRowContext(ctx,
			`UPDATE subscribers SET active = FALSE, unsubscribed_at = ?
			 WHERE reference_code = ? AND active = TRUE
			 RETURNING id`,
			ts, referenceCode,
		)
	default:
		return 0, fmt.Errorf("phone or reference code required")
	}

	var id int64
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("error unsubscribing: %w", err)
	}
	return id, nil
}

const subscriberColumns = `id, phone_number, email, profile, notification_prefs, reference_code,
	verified, active, created_at, verified_at, unsubscribed_at`

func (s *SQLiteDB) GetByPhone(ctx context.Context, phone string) (*models.Subscriber, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil, ErrInvalidPhone
	}
	row := s.db.QueryRowContext(ctx,
		"SELECT "+subscriberColumns+" FROM subscribers WHERE phone_number = ?", normalized)
	return scanSubscriber(row)
}

func (s *SQLiteDB) GetByReference(ctx context.Context, referenceCode string) (*models.Subscriber, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+subscriberColumns+" FROM subscribers WHERE reference_code = ?", referenceCode)
	return scanSubscriber(row)
}

func scanSubscriber(row *sql.Row) (*models.Subscriber, error) {
	var (
		sub            models.Subscriber
		prefs          string
		createdAt      string
		verifiedAt     sql.NullString
		unsubscribedAt sql.NullString
	)
	err := row.Scan(&sub.ID, &sub.Phone, &sub.Email, &sub.Profile, &prefs, &sub.ReferenceCode,
		&sub.Verified, &sub.Active, &createdAt, &verifiedAt, &unsubscribedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning subscriber: %w", err)
	}

	sub.Prefs = models.NotificationPrefs(prefs)
	sub.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if verifiedAt.Valid {
		if t, err := time.Parse(time.RFC3339, verifiedAt.String); err == nil {
			sub.VerifiedAt = &t
		}
	}
	if unsubscribedAt.Valid {
		if t, err := time.Parse(time.RFC3339, unsubscribedAt.String); err == nil {
			sub.UnsubscribedAt = &t
		}
	}
	return &sub, nil
}

func (s *SQLiteDB) UpdateProfile(ctx context.Context, phone, profile string) error {
	if !models.ValidProfile(profile) {
		return fmt.Errorf("invalid profile: %s", profile)
	}
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return ErrInvalidPhone
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE subscribers SET profile = ? WHERE phone_number = ? AND active = TRUE",
		profile, normalized,
	)
	if err != nil {
		return fmt.Errorf("error updating profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteDB) ListActiveVerified(ctx context.Context) ([]models.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phone_number, email, profile, notification_prefs, reference_code
		 FROM subscribers
		 WHERE active = TRUE AND verified = TRUE
		 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("error listing subscribers: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscriber
	for rows.Next() {
		var (
			sub   models.Subscriber
			prefs string
		)
		if err := rows.Scan(&sub.ID, &sub.Phone, &sub.Email, &sub.Profile, &prefs, &sub.ReferenceCode); err != nil {
			return nil, fmt.Errorf("error scanning subscriber row: %w", err)
		}
		sub.Prefs = models.NotificationPrefs(prefs)
		sub.Verified = true
		sub.Active = true
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *SQLiteDB) Stats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{ByProfile: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM subscribers").Scan(&stats.TotalSubscribers); err != nil {
		return nil, fmt.Errorf("error counting subscribers: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM subscribers WHERE active = TRUE AND verified = TRUE").Scan(&stats.ActiveVerified); err != nil {
		return nil, fmt.Errorf("error counting active subscribers: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM subscribers WHERE active = TRUE AND verified = FALSE").Scan(&stats.PendingVerification); err != nil {
		return nil, fmt.Errorf("error counting pending subscribers: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alert_history").Scan(&stats.TotalAlertsSent); err != nil {
		return nil, fmt.Errorf("error counting alert history: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT profile, COUNT(*) FROM subscribers
		 WHERE active = TRUE AND verified = TRUE GROUP BY profile`)
	if err != nil {
		return nil, fmt.Errorf("error grouping profiles: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			profile string
			count   int
		)
		if err := rows.Scan(&profile, &count); err != nil {
			return nil, fmt.Errorf("error scanning profile count: %w", err)
		}
		stats.ByProfile[profile] = count
	}
	return stats, rows.Err()
}

func (s *SQLiteDB) LogAlert(ctx context.Context, rec *models.AlertRecord) error {
	sentAt := rec.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_history
		 (subscriber_id, phenomenon_type, color_code, message, channel, delivery_status, provider_message_id, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SubscriberID, rec.PhenomenonType, rec.ColorCode, rec.Message,
		rec.Channel, rec.DeliveryStatus, rec.ProviderMessageID, sentAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("error logging alert: %w", err)
	}
	return nil
}

func (s *SQLiteDB) ListHistory(ctx context.Context, subscriberID int64, limit int) ([]models.AlertRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, subscriber_id, phenomenon_type, color_code, message, channel,
		delivery_status, provider_message_id, sent_at FROM alert_history`
	args := []any{}
	if subscriberID > 0 {
		query += " WHERE subscriber_id = ?"
		args = append(args, subscriberID)
	}
	query += " ORDER BY sent_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying history: %w", err)
	}
	defer rows.Close()

	var records []models.AlertRecord
	for rows.Next() {
		var (
			rec    models.AlertRecord
			sentAt string
		)
		if err := rows.Scan(&rec.ID, &rec.SubscriberID, &rec.PhenomenonType, &rec.ColorCode,
			&rec.Message, &rec.Channel, &rec.DeliveryStatus, &rec.ProviderMessageID, &sentAt); err != nil {
			return nil, fmt.Errorf("error scanning history row: %w", err)
		}
		rec.SentAt, _ = time.Parse(time.RFC3339, sentAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteDB) LoadAlertState(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT phenomenon_type, color_code FROM alert_state")
	if err != nil {
		return nil, fmt.Errorf("error loading alert state: %w", err)
	}
	defer rows.Close()

	state := make(map[string]int)
	for rows.Next() {
		var (
			phenomenonType string
			color          int
		)
		if err := rows.Scan(&phenomenonType, &color); err != nil {
			return nil, fmt.Errorf("error scanning alert state row: %w", err)
		}
		state[phenomenonType] = color
	}
	return state, rows.Err()
}

func (s *SQLiteDB) SaveAlertState(ctx context.Context, state map[string]int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting state transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM alert_state"); err != nil {
		return fmt.Errorf("error clearing alert state: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for phenomenonType, color := range state {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO alert_state (phenomenon_type, color_code, updated_at) VALUES (?, ?, ?)",
			phenomenonType, color, now,
		); err != nil {
			return fmt.Errorf("error writing alert state: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing alert state: %w", err)
	}
	return nil
}

func (s *SQLiteDB) SaveSnapshot(ctx context.Context, snap *models.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("error encoding snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO vigilance_snapshots (fetched_at, domain, max_color, payload) VALUES (?, ?, ?, ?)",
		snap.FetchedAt.UTC().Format(time.RFC3339), snap.Domain, snap.MaxColor, string(payload),
	)
	if err != nil {
		return fmt.Errorf("error saving snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteDB) LatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM vigilance_snapshots ORDER BY id DESC LIMIT 1").Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading snapshot: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("error decoding snapshot: %w", err)
	}
	return &snap, nil
}
