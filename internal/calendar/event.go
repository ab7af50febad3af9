// Package calendar provides normalized calendar events for the local day,
// fetched from either Google Calendar (OAuth2 delegated access) or a plain
// ICS subscription URL.
package calendar

import (
	"fmt"
	"sort"
	"time"
)

// Event is the canonical normalized event shape shared by all sources.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
}

// untitledEvent substitutes for a missing provider summary.
const untitledEvent = "Untitled Event"

// FetchError wraps transport or provider failures from a calendar source.
type FetchError struct {
	Source  string
	Status  int
	Message string
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("calendar fetch failed (%s, HTTP %d): %s", e.Source, e.Status, e.Message)
	}
	return fmt.Sprintf("calendar fetch failed (%s): %s", e.Source, e.Message)
}

// DayWindow returns the [00:00:00, 23:59:59.999] window for now's date in
// the given zone. The user's calendar day follows the configured timezone,
// never UTC.
func DayWindow(now time.Time, loc *time.Location) (start, end time.Time) {
	local := now.In(loc)
	start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end = start.Add(24*time.Hour - time.Millisecond)
	return start, end
}

// sortEvents orders events ascending by start time, ties broken by the
// provider-assigned ID for a stable agenda.
func sortEvents(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return events[i].ID < events[j].ID
	})
}

// inWindow reports whether the event's start lies inside [start, end].
func inWindow(ev Event, start, end time.Time) bool {
	return !ev.Start.Before(start) && !ev.Start.After(end)
}
