package briefing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kalambet/daybrief/internal/calendar"
	"github.com/kalambet/daybrief/internal/narrative"
	"github.com/kalambet/daybrief/internal/storage"
	"github.com/kalambet/daybrief/internal/weather"
)

type fakeWeather struct {
	snapshot *weather.Snapshot
	err      error
	gotLoc   string
}

func (f *fakeWeather) Forecast(_ context.Context, location string) (*weather.Snapshot, error) {
	f.gotLoc = location
	return f.snapshot, f.err
}

type fakeCalendar struct {
	events []calendar.Event
	err    error
}

func (f *fakeCalendar) TodayEvents(context.Context) ([]calendar.Event, error) {
	return f.events, f.err
}

type fakeComposer struct {
	text     string
	fellBack bool
	gotDay   narrative.Context
}

func (f *fakeComposer) Compose(_ context.Context, day narrative.Context) (string, bool) {
	f.gotDay = day
	return f.text, f.fellBack
}

type memHistory struct {
	saved []storage.Briefing
	err   error
}

func (h *memHistory) SaveBriefing(b storage.Briefing) error {
	if h.err != nil {
		return h.err
	}
	h.saved = append(h.saved, b)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSnapshot() *weather.Snapshot {
	return &weather.Snapshot{
		Location:     "Amsterdam",
		Condition:    "Light Rain",
		TemperatureC: 18,
		PrecipChance: 60,
	}
}

func testEvents() []calendar.Event {
	return []calendar.Event{
		{ID: "a", Title: "Standup", Start: time.Date(2026, time.August, 29, 9, 0, 0, 0, time.UTC)},
	}
}

func TestRunHappyPath(t *testing.T) {
	ws := &fakeWeather{snapshot: testSnapshot()}
	cs := &fakeCalendar{events: testEvents()}
	composer := &fakeComposer{text: "Rise and shine!"}
	history := &memHistory{}

	o := New(ws, cs, composer, history, "Amsterdam", testLogger())
	result := o.Run(context.Background())

	if result.ID == "" {
		t.Error("ID is empty")
	}
	if result.Narrative != "Rise and shine!" {
		t.Errorf("Narrative = %q", result.Narrative)
	}
	if result.WeatherFailed || result.CalendarFailed || result.NarrativeFallback {
		t.Errorf("unexpected failure flags: %+v", result)
	}
	if ws.gotLoc != "Amsterdam" {
		t.Errorf("weather location = %q", ws.gotLoc)
	}
	if composer.gotDay.Weather == nil || len(composer.gotDay.Events) != 1 {
		t.Errorf("composer context = %+v", composer.gotDay)
	}
	if len(history.saved) != 1 {
		t.Fatalf("saved %d briefings, want 1", len(history.saved))
	}
	if history.saved[0].ID != result.ID || history.saved[0].Narrative != "Rise and shine!" {
		t.Errorf("saved record = %+v", history.saved[0])
	}
	if history.saved[0].EventsJSON == "" || history.saved[0].WeatherJSON == "" {
		t.Errorf("saved record missing JSON payloads: %+v", history.saved[0])
	}
}

func TestRunWeatherFailure(t *testing.T) {
	ws := &fakeWeather{err: &weather.FetchError{Status: 500, Message: "server error"}}
	cs := &fakeCalendar{events: testEvents()}
	composer := &fakeComposer{text: "Good morning anyway!"}

	o := New(ws, cs, composer, nil, "Amsterdam", testLogger())
	result := o.Run(context.Background())

	if !result.WeatherFailed {
		t.Error("WeatherFailed = false, want true")
	}
	if result.Weather != nil {
		t.Errorf("Weather = %+v, want nil", result.Weather)
	}
	if result.CalendarFailed {
		t.Error("CalendarFailed = true, want false")
	}
	if result.Narrative == "" {
		t.Error("Narrative is empty")
	}
	if composer.gotDay.Weather != nil {
		t.Error("composer received weather despite fetch failure")
	}
}

func TestRunCalendarFailure(t *testing.T) {
	ws := &fakeWeather{snapshot: testSnapshot()}
	cs := &fakeCalendar{err: errors.New("no stored credential")}
	composer := &fakeComposer{text: "Good morning!"}

	o := New(ws, cs, composer, nil, "Amsterdam", testLogger())
	result := o.Run(context.Background())

	if !result.CalendarFailed {
		t.Error("CalendarFailed = false, want true")
	}
	if len(result.Events) != 0 {
		t.Errorf("Events = %+v, want empty", result.Events)
	}
	if result.Events == nil {
		t.Error("Events is nil, want empty slice for JSON shape")
	}
}

func TestRunBothSourcesFail(t *testing.T) {
	ws := &fakeWeather{err: errors.New("timeout")}
	cs := &fakeCalendar{err: errors.New("timeout")}
	composer := &fakeComposer{text: "Still a good morning!", fellBack: true}

	o := New(ws, cs, composer, nil, "Amsterdam", testLogger())
	result := o.Run(context.Background())

	if !result.WeatherFailed || !result.CalendarFailed {
		t.Errorf("flags = %+v, want both set", result)
	}
	if !result.NarrativeFallback {
		t.Error("NarrativeFallback = false, want true")
	}
	if result.Narrative == "" {
		t.Error("Narrative is empty, want text on every path")
	}
}

type failingGenerator struct{}

func (failingGenerator) Complete(context.Context, string, string) (string, error) {
	return "", errors.New("connection refused")
}

// Full fixture through the real composer: weather snapshot plus two timed
// events must render the exact fallback string when the generator fails.
func TestRunFallbackTemplateEndToEnd(t *testing.T) {
	ws := &fakeWeather{snapshot: &weather.Snapshot{
		Location:     "Amsterdam",
		Condition:    "Light Rain",
		TemperatureC: 18,
		PrecipChance: 60,
	}}
	cs := &fakeCalendar{events: []calendar.Event{
		{ID: "a", Title: "Standup", Start: time.Date(2026, time.August, 29, 9, 0, 0, 0, time.UTC), End: time.Date(2026, time.August, 29, 9, 30, 0, 0, time.UTC)},
		{ID: "b", Title: "Client Call", Start: time.Date(2026, time.August, 29, 14, 0, 0, 0, time.UTC), End: time.Date(2026, time.August, 29, 15, 0, 0, 0, time.UTC)},
	}}
	composer := narrative.New(failingGenerator{}, testLogger())

	o := New(ws, cs, composer, nil, "Amsterdam", testLogger())
	result := o.Run(context.Background())

	want := "Good morning! Today's weather: light rain, 18°C, 60% chance of rain. " +
		"You have 2 events today: 09:00 Standup, 14:00 Client Call."
	if result.Narrative != want {
		t.Errorf("Narrative = %q, want %q", result.Narrative, want)
	}
	if !result.NarrativeFallback {
		t.Error("NarrativeFallback = false, want true")
	}
}

func TestRunHistoryFailureNotFatal(t *testing.T) {
	ws := &fakeWeather{snapshot: testSnapshot()}
	cs := &fakeCalendar{}
	composer := &fakeComposer{text: "Good morning!"}
	history := &memHistory{err: errors.New("disk full")}

	o := New(ws, cs, composer, history, "Amsterdam", testLogger())
	result := o.Run(context.Background())

	if result.Narrative != "Good morning!" {
		t.Errorf("Narrative = %q, want result despite persistence failure", result.Narrative)
	}
}
