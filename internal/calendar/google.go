package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultGoogleBaseURL = "https://www.googleapis.com/calendar/v3"
	googleTimeout        = 15 * time.Second
)

// TokenProvider supplies a valid delegated access token. Credential errors
// (no stored credential, refresh rejected) pass through untouched so the
// caller can tell them apart from transport failures; in both cases no
// events request is attempted.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// GoogleSource fetches today's events from the Google Calendar events-list
// endpoint with recurring events expanded to single instances.
type GoogleSource struct {
	tokens     TokenProvider
	calendarID string
	loc        *time.Location
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewGoogleSource creates a source for the given calendar ID ("primary"
// for the user's default calendar). The day window is computed in loc.
func NewGoogleSource(tokens TokenProvider, calendarID string, loc *time.Location) *GoogleSource {
	return &GoogleSource{
		tokens:     tokens,
		calendarID: calendarID,
		loc:        loc,
		baseURL:    defaultGoogleBaseURL,
		httpClient: &http.Client{Timeout: googleTimeout},
		now:        time.Now,
	}
}

// NewGoogleSourceWithBaseURL creates a source against a custom API base URL (for testing).
func NewGoogleSourceWithBaseURL(tokens TokenProvider, calendarID string, loc *time.Location, baseURL string) *GoogleSource {
	s := NewGoogleSource(tokens, calendarID, loc)
	s.baseURL = strings.TrimRight(baseURL, "/")
	return s
}

// googleEvent mirrors the subset of the events-list item shape we consume.
type googleEvent struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Summary string `json:"summary"`
	Start   struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	} `json:"start"`
	End struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	} `json:"end"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Attendees   []struct {
		Email string `json:"email"`
	} `json:"attendees"`
}

type googleEventList struct {
	Items []googleEvent `json:"items"`
}

// TodayEvents returns the local day's events, recurring instances
// expanded, normalized and sorted ascending by start time.
func (g *GoogleSource) TodayEvents(ctx context.Context) ([]Event, error) {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		// No credential or refresh rejected: fatal to the calendar path,
		// no network call is made.
		return nil, err
	}

	dayStart, dayEnd := DayWindow(g.now(), g.loc)

	q := url.Values{
		"timeMin":      {dayStart.Format(time.RFC3339)},
		"timeMax":      {dayEnd.Format(time.RFC3339)},
		"singleEvents": {"true"},
		"orderBy":      {"startTime"},
		"maxResults":   {"50"},
	}
	endpoint := fmt.Sprintf("%s/calendars/%s/events?%s", g.baseURL, url.PathEscape(g.calendarID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Source: "google", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{Source: "google", Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var list googleEventList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, &FetchError{Source: "google", Status: resp.StatusCode, Message: fmt.Sprintf("decoding response: %v", err)}
	}

	events := make([]Event, 0, len(list.Items))
	for _, item := range list.Items {
		if item.Status == "cancelled" {
			continue
		}
		ev, err := g.normalize(item)
		if err != nil {
			return nil, &FetchError{Source: "google", Message: fmt.Sprintf("normalizing event %s: %v", item.ID, err)}
		}
		if inWindow(ev, dayStart, dayEnd) {
			events = append(events, ev)
		}
	}

	sortEvents(events)
	return events, nil
}

// normalize converts a provider event into the canonical Event. An event
// whose start carries only a date is all-day; it keeps local midnight as
// its start but is labeled rather than given a synthetic time.
func (g *GoogleSource) normalize(item googleEvent) (Event, error) {
	ev := Event{
		ID:          item.ID,
		Title:       item.Summary,
		Location:    item.Location,
		Description: item.Description,
	}
	if ev.Title == "" {
		ev.Title = untitledEvent
	}

	switch {
	case item.Start.DateTime != "":
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return Event{}, fmt.Errorf("parsing start: %w", err)
		}
		ev.Start = start.In(g.loc)
		if item.End.DateTime != "" {
			end, err := time.Parse(time.RFC3339, item.End.DateTime)
			if err != nil {
				return Event{}, fmt.Errorf("parsing end: %w", err)
			}
			ev.End = end.In(g.loc)
		}
	case item.Start.Date != "":
		start, err := time.ParseInLocation("2006-01-02", item.Start.Date, g.loc)
		if err != nil {
			return Event{}, fmt.Errorf("parsing all-day start: %w", err)
		}
		ev.AllDay = true
		ev.Start = start
		ev.End = start.Add(24 * time.Hour)
	default:
		return Event{}, fmt.Errorf("event has neither dateTime nor date start")
	}

	for _, a := range item.Attendees {
		if a.Email != "" {
			ev.Attendees = append(ev.Attendees, a.Email)
		}
	}

	return ev, nil
}
