package models

import "time"

// NotificationPrefs selects which delivery channels a subscriber receives
// alerts on.
type NotificationPrefs string

const (
	PrefsSMS   NotificationPrefs = "sms"
	PrefsEmail NotificationPrefs = "email"
	PrefsBoth  NotificationPrefs = "both"
)

// WantsSMS reports whether SMS delivery is enabled for these prefs.
func (p NotificationPrefs) WantsSMS() bool {
	return p == PrefsSMS || p == PrefsBoth
}

// WantsEmail reports whether email delivery is enabled for these prefs.
func (p NotificationPrefs) WantsEmail() bool {
	return p == PrefsEmail || p == PrefsBoth
}

// Valid reports whether p is one of the known preference values.
func (p NotificationPrefs) Valid() bool {
	switch p {
	case PrefsSMS, PrefsEmail, PrefsBoth:
		return true
	}
	return false
}

// DefaultProfile is applied when a subscription request carries no profile or
// an unknown one.
const DefaultProfile = "Particulier"

// Profiles are the fixed subscriber categories; advice in alert messages is
// tailored per profile.
var Profiles = []string{
	"Particulier",
	"Professionnel (BTP / agriculture)",
	"Nautique / pêche / plaisance",
	"Tourisme / plages",
}

// ValidProfile reports whether profile is one of the fixed categories.
func ValidProfile(profile string) bool {
	for _, p := range Profiles {
		if p == profile {
			return true
		}
	}
	return false
}

type Subscriber struct {
	ID             int64
	Phone          string
	Email          string
	Profile        string
	Prefs          NotificationPrefs
	ReferenceCode  string
	Verified       bool
	Active         bool
	CreatedAt      time.Time
	VerifiedAt     *time.Time
	UnsubscribedAt *time.Time
}

// AlertRecord is one append-only alert-history row. Never updated or deleted.
type AlertRecord struct {
	ID                int64
	SubscriberID      int64
	PhenomenonType    string
	ColorCode         int
	Message           string
	Channel           string
	DeliveryStatus    string
	ProviderMessageID string
	SentAt            time.Time
}

// Stats summarizes the subscriber base for the /api/stats endpoint.
type Stats struct {
	TotalSubscribers    int            `json:"total_subscribers"`
	ActiveVerified      int            `json:"active_verified"`
	PendingVerification int            `json:"pending_verification"`
	TotalAlertsSent     int            `json:"total_alerts_sent"`
	ByProfile           map[string]int `json:"by_profile"`
}
