// Package briefing orchestrates the morning pipeline: concurrent weather
// and calendar fetch, narrative composition, history persistence.
package briefing

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/daybrief/internal/calendar"
	"github.com/kalambet/daybrief/internal/narrative"
	"github.com/kalambet/daybrief/internal/storage"
	"github.com/kalambet/daybrief/internal/weather"
)

// WeatherSource supplies the current weather snapshot for a location.
type WeatherSource interface {
	Forecast(ctx context.Context, location string) (*weather.Snapshot, error)
}

// CalendarSource supplies today's normalized events.
type CalendarSource interface {
	TodayEvents(ctx context.Context) ([]calendar.Event, error)
}

// Composer turns the day context into narrative text. The second return
// reports whether the deterministic fallback was used.
type Composer interface {
	Compose(ctx context.Context, day narrative.Context) (string, bool)
}

// History records generated briefings. Nil disables persistence.
type History interface {
	SaveBriefing(b storage.Briefing) error
}

// Result is one generated briefing, JSON-shaped for the API.
type Result struct {
	ID                string            `json:"id"`
	GeneratedAt       time.Time         `json:"generated_at"`
	Narrative         string            `json:"narrative"`
	Weather           *weather.Snapshot `json:"weather,omitempty"`
	Events            []calendar.Event  `json:"events"`
	WeatherFailed     bool              `json:"weather_failed"`
	CalendarFailed    bool              `json:"calendar_failed"`
	NarrativeFallback bool              `json:"narrative_fallback"`
}

// Orchestrator wires the sources, the composer and the history store.
type Orchestrator struct {
	weather  WeatherSource
	calendar CalendarSource
	composer Composer
	history  History
	location string
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an orchestrator. history may be nil.
func New(ws WeatherSource, cs CalendarSource, composer Composer, history History, location string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		weather:  ws,
		calendar: cs,
		composer: composer,
		history:  history,
		location: location,
		logger:   logger,
		now:      time.Now,
	}
}

// Run produces a briefing. Source failures degrade to defaults and set the
// corresponding flag; Run itself never fails, so callers always get a
// narrative.
func (o *Orchestrator) Run(ctx context.Context) Result {
	result := Result{
		ID:          uuid.NewString(),
		GeneratedAt: o.now(),
		Events:      []calendar.Event{},
	}

	var g errgroup.Group
	g.Go(func() error {
		snapshot, err := o.weather.Forecast(ctx, o.location)
		if err != nil {
			o.logger.Warn("weather fetch failed", "source", "weather", "error", err)
			result.WeatherFailed = true
			return nil
		}
		result.Weather = snapshot
		return nil
	})
	g.Go(func() error {
		events, err := o.calendar.TodayEvents(ctx)
		if err != nil {
			o.logger.Warn("calendar fetch failed", "source", "calendar", "error", err)
			result.CalendarFailed = true
			return nil
		}
		result.Events = events
		return nil
	})
	_ = g.Wait()

	result.Narrative, result.NarrativeFallback = o.composer.Compose(ctx, narrative.Context{
		Now:     result.GeneratedAt,
		Weather: result.Weather,
		Events:  result.Events,
	})

	o.persist(result)
	return result
}

func (o *Orchestrator) persist(r Result) {
	if o.history == nil {
		return
	}

	record := storage.Briefing{
		ID:                r.ID,
		CreatedAt:         r.GeneratedAt,
		Narrative:         r.Narrative,
		WeatherFailed:     r.WeatherFailed,
		CalendarFailed:    r.CalendarFailed,
		NarrativeFallback: r.NarrativeFallback,
	}
	if r.Weather != nil {
		if data, err := json.Marshal(r.Weather); err == nil {
			record.WeatherJSON = string(data)
		}
	}
	if data, err := json.Marshal(r.Events); err == nil {
		record.EventsJSON = string(data)
	}

	if err := o.history.SaveBriefing(record); err != nil {
		o.logger.Warn("saving briefing history", "id", r.ID, "error", err)
	}
}
