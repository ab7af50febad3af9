package calendar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
)

const (
	icsTimeout = 15 * time.Second

	// Safety cap when expanding recurrences inside a single day.
	maxOccurrencesPerEvent = 100
)

// ICSSource fetches an ICS subscription URL and expands its events into
// the local day window. Unlike the Google source it needs no credential;
// recurrence expansion happens client-side.
type ICSSource struct {
	url        string
	loc        *time.Location
	httpClient *http.Client
	now        func() time.Time
}

// NewICSSource creates a source for the given ICS URL.
func NewICSSource(url string, loc *time.Location) *ICSSource {
	return &ICSSource{
		url:        url,
		loc:        loc,
		httpClient: &http.Client{Timeout: icsTimeout},
		now:        time.Now,
	}
}

// TodayEvents fetches the feed and returns today's occurrences, recurring
// events expanded, normalized and sorted like the Google source.
func (s *ICSSource) TodayEvents(ctx context.Context) ([]Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Source: "ics", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Source: "ics", Status: resp.StatusCode, Message: "fetching feed"}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &FetchError{Source: "ics", Message: fmt.Sprintf("reading feed: %v", err)}
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, &FetchError{Source: "ics", Message: fmt.Sprintf("parsing feed: %v", err)}
	}

	dayStart, dayEnd := DayWindow(s.now(), s.loc)

	var events []Event
	for _, ve := range cal.Events() {
		occ, err := s.expand(ve, dayStart, dayEnd)
		if err != nil {
			// Skip unparseable events, keep the rest of the feed usable.
			continue
		}
		events = append(events, occ...)
	}

	sortEvents(events)
	return events, nil
}

// expand turns one VEVENT into its occurrences within [dayStart, dayEnd].
func (s *ICSSource) expand(ve *ical.VEvent, dayStart, dayEnd time.Time) ([]Event, error) {
	uid := ""
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		uid = p.Value
	}
	if uid == "" {
		return nil, fmt.Errorf("missing UID")
	}

	base := Event{ID: uid, Title: untitledEvent}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil && p.Value != "" {
		base.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		base.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		base.Location = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return nil, fmt.Errorf("missing DTSTART: %w", err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		end = start
	}

	// All-day: DTSTART carries VALUE=DATE or a date-only value.
	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			base.AllDay = true
		} else if !strings.Contains(p.Value, "T") {
			base.AllDay = true
		}
	}

	rawRRule := ""
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		rawRRule = p.Value
	}

	if rawRRule == "" {
		ev := base
		ev.Start = start.In(s.loc)
		ev.End = end.In(s.loc)
		if base.AllDay {
			ev.Start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, s.loc)
			ev.End = ev.Start.Add(24 * time.Hour)
		}
		if !inWindow(ev, dayStart, dayEnd) {
			return nil, nil
		}
		return []Event{ev}, nil
	}

	r, err := rrule.StrToRRule(rawRRule)
	if err != nil {
		return nil, fmt.Errorf("parsing RRULE: %w", err)
	}
	r.DTStart(start)

	var set rrule.Set
	set.RRule(r)
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if ex, err := parseICSTime(strings.TrimSpace(part), start.Location()); err == nil {
				set.ExDate(ex.In(start.Location()))
			}
		}
	}

	occStarts := set.Between(dayStart.In(start.Location()), dayEnd.In(start.Location()), true)
	if len(occStarts) > maxOccurrencesPerEvent {
		occStarts = occStarts[:maxOccurrencesPerEvent]
	}

	duration := end.Sub(start)
	events := make([]Event, 0, len(occStarts))
	for _, occStart := range occStarts {
		ev := base
		// Per-instance ID so ties sort stably across recurrences.
		ev.ID = fmt.Sprintf("%s/%s", uid, occStart.UTC().Format("20060102T150405Z"))
		if base.AllDay {
			ev.Start = time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, s.loc)
			ev.End = ev.Start.Add(24 * time.Hour)
		} else {
			ev.Start = occStart.In(s.loc)
			ev.End = ev.Start.Add(duration)
		}
		if inWindow(ev, dayStart, dayEnd) {
			events = append(events, ev)
		}
	}
	return events, nil
}

// parseICSTime parses the basic EXDATE forms: UTC date-time, floating
// date-time, and date-only.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
