package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Credential is the single persisted OAuth2 record for the calendar
// provider. The refresh token is the long-lived root of trust; the access
// token and expiry are replaced on every refresh.
type Credential struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	AccessToken  string
	Expiry       time.Time
	UpdatedAt    time.Time
}

// Briefing is one generated briefing result kept for history.
type Briefing struct {
	ID                string
	CreatedAt         time.Time
	Narrative         string
	WeatherJSON       string // snapshot as JSON, empty when the source failed
	EventsJSON        string // JSON array of normalized events
	WeatherFailed     bool
	CalendarFailed    bool
	NarrativeFallback bool
}
