package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// staticTokens satisfies TokenProvider with a fixed token or error.
type staticTokens struct {
	token string
	err   error
	calls atomic.Int32
}

func (s *staticTokens) Token(ctx context.Context) (string, error) {
	s.calls.Add(1)
	return s.token, s.err
}

var errNoCred = errors.New("no stored credential")

func testLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatalf("loading zone: %v", err)
	}
	return loc
}

// fixedNow is a Saturday morning in London, during BST.
var fixedNow = time.Date(2026, 8, 29, 7, 30, 0, 0, time.UTC)

func newTestGoogleSource(t *testing.T, handler http.HandlerFunc) *GoogleSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g := NewGoogleSourceWithBaseURL(&staticTokens{token: "tok"}, "primary", testLoc(t), srv.URL)
	g.now = func() time.Time { return fixedNow }
	return g
}

func TestTodayEvents_WindowAndAuth(t *testing.T) {
	var gotQuery, gotAuth string
	g := newTestGoogleSource(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"items":[]}`))
	})

	events, err := g.TodayEvents(context.Background())
	if err != nil {
		t.Fatalf("TodayEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events = %d, want 0", len(events))
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}

	// Local-midnight window in the configured zone (BST, +01:00), not UTC.
	for _, want := range []string{"singleEvents=true", "orderBy=startTime", "2026-08-29T00%3A00%3A00%2B01%3A00"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query missing %q: %s", want, gotQuery)
		}
	}
}

func TestTodayEvents_NormalizeAndSort(t *testing.T) {
	g := newTestGoogleSource(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[
			{"id":"ev-later","summary":"Client Call",
			 "start":{"dateTime":"2026-08-29T14:00:00+01:00"},
			 "end":{"dateTime":"2026-08-29T15:00:00+01:00"},
			 "attendees":[{"email":"alex@example.com"},{"email":"sam@example.com"}]},
			{"id":"ev-b","summary":"",
			 "start":{"dateTime":"2026-08-29T09:00:00+01:00"},
			 "end":{"dateTime":"2026-08-29T09:30:00+01:00"}},
			{"id":"ev-a","summary":"Standup","location":"Room 2",
			 "start":{"dateTime":"2026-08-29T09:00:00+01:00"},
			 "end":{"dateTime":"2026-08-29T09:30:00+01:00"}},
			{"id":"ev-allday","summary":"Bank Holiday",
			 "start":{"date":"2026-08-29"},"end":{"date":"2026-08-30"}},
			{"id":"ev-cancelled","summary":"Ghost","status":"cancelled",
			 "start":{"dateTime":"2026-08-29T10:00:00+01:00"}}
		]}`)
	})

	events, err := g.TodayEvents(context.Background())
	if err != nil {
		t.Fatalf("TodayEvents: %v", err)
	}

	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	// All-day sorts to local midnight; equal starts break ties by ID.
	want := []string{"ev-allday", "ev-a", "ev-b", "ev-later"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}

	if events[0].AllDay != true {
		t.Error("all-day event not labeled")
	}
	if events[2].Title != "Untitled Event" {
		t.Errorf("missing title = %q, want Untitled Event", events[2].Title)
	}
	if diff := cmp.Diff([]string{"alex@example.com", "sam@example.com"}, events[3].Attendees); diff != "" {
		t.Errorf("attendees mismatch (-want +got):\n%s", diff)
	}

	// Sorted ascending, all starts inside the local day window.
	dayStart, dayEnd := DayWindow(fixedNow, testLoc(t))
	for i, ev := range events {
		if i > 0 && ev.Start.Before(events[i-1].Start) {
			t.Errorf("events not sorted at %d", i)
		}
		if ev.Start.Before(dayStart) || ev.Start.After(dayEnd) {
			t.Errorf("event %s start %v outside window [%v, %v]", ev.ID, ev.Start, dayStart, dayEnd)
		}
	}
}

func TestTodayEvents_DropsOutOfWindow(t *testing.T) {
	g := newTestGoogleSource(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[
			{"id":"yesterday","summary":"Late show",
			 "start":{"dateTime":"2026-08-28T23:30:00+01:00"},
			 "end":{"dateTime":"2026-08-29T00:30:00+01:00"}},
			{"id":"today","summary":"Standup",
			 "start":{"dateTime":"2026-08-29T09:00:00+01:00"},
			 "end":{"dateTime":"2026-08-29T09:30:00+01:00"}}
		]}`)
	})

	events, err := g.TodayEvents(context.Background())
	if err != nil {
		t.Fatalf("TodayEvents: %v", err)
	}
	if len(events) != 1 || events[0].ID != "today" {
		t.Fatalf("events = %+v, want only 'today'", events)
	}
}

func TestTodayEvents_NoCredentialNoNetworkCall(t *testing.T) {
	var apiCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
	}))
	defer srv.Close()

	tokens := &staticTokens{err: errNoCred}
	g := NewGoogleSourceWithBaseURL(tokens, "primary", testLoc(t), srv.URL)
	g.now = func() time.Time { return fixedNow }

	_, err := g.TodayEvents(context.Background())
	if !errors.Is(err, errNoCred) {
		t.Fatalf("err = %v, want credential error passed through", err)
	}
	if apiCalls.Load() != 0 {
		t.Errorf("events API called %d times without a credential, want 0", apiCalls.Load())
	}
}

func TestTodayEvents_APIError(t *testing.T) {
	g := newTestGoogleSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"backend"}}`))
	})

	_, err := g.TodayEvents(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.Status != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", fe.Status)
	}
}

func TestDayWindow(t *testing.T) {
	loc := testLoc(t)
	start, end := DayWindow(fixedNow, loc)

	if start.Hour() != 0 || start.Minute() != 0 || start.Second() != 0 {
		t.Errorf("start = %v, want local midnight", start)
	}
	if got := end.Sub(start); got != 24*time.Hour-time.Millisecond {
		t.Errorf("window length = %v", got)
	}
	if start.Location() != loc {
		t.Errorf("window not in configured zone")
	}
}
