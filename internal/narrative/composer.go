// Package narrative turns a day's weather and agenda into spoken-friendly
// text, with a deterministic template when the language model is
// unavailable.
package narrative

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/daybrief/internal/calendar"
	"github.com/kalambet/daybrief/internal/weather"
)

const systemInstruction = "You are an enthusiastic morning assistant. " +
	"Write a cheerful, energetic morning briefing that is easy to read aloud. " +
	"Mention the weather and every scheduled event. Keep it under 150 words " +
	"and do not use markdown or bullet points."

// GenerateError wraps a language model failure. The composer falls back
// to the template when it occurs, so callers only ever see it in logs.
type GenerateError struct {
	Err error
}

func (e *GenerateError) Error() string {
	return fmt.Sprintf("generating narrative: %s", e.Err)
}

func (e *GenerateError) Unwrap() error {
	return e.Err
}

// Generator produces text from a system and user prompt.
type Generator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Context carries everything the composer needs about the day. Weather is
// nil and Events empty when the respective fetch failed.
type Context struct {
	Now     time.Time
	Weather *weather.Snapshot
	Events  []calendar.Event
}

// Composer produces briefing narratives.
type Composer struct {
	generator Generator
	logger    *slog.Logger
}

// New creates a composer backed by the given generator.
func New(generator Generator, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{generator: generator, logger: logger}
}

// Compose returns narrative text for the day. It never fails: when the
// generator errors or is absent, the second return is true and the text is
// the deterministic template.
func (c *Composer) Compose(ctx context.Context, day Context) (string, bool) {
	if c.generator == nil {
		return Template(day), true
	}

	text, err := c.generator.Complete(ctx, systemInstruction, buildPrompt(day))
	if err != nil {
		genErr := &GenerateError{Err: err}
		c.logger.Warn("language model unavailable, using template", "error", genErr)
		return Template(day), true
	}
	return text, false
}

// buildPrompt assembles the user message: date, weather paragraph, agenda.
func buildPrompt(day Context) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Today is %s.\n\n", day.Now.Format("Monday, January 2, 2006"))

	if w := day.Weather; w != nil {
		fmt.Fprintf(&b, "Weather in %s: %s, %.0f°C (low %.0f°C, high %.0f°C), %d%% chance of rain.\n\n",
			w.Location, strings.ToLower(w.Condition), w.TemperatureC, w.MinC, w.MaxC, w.PrecipChance)
	} else {
		b.WriteString("Weather information is not available right now.\n\n")
	}

	if len(day.Events) == 0 {
		b.WriteString("No events scheduled for today.\n")
	} else {
		b.WriteString("Today's schedule:\n")
		for _, ev := range day.Events {
			if ev.AllDay {
				fmt.Fprintf(&b, "all day — %s\n", ev.Title)
			} else {
				fmt.Fprintf(&b, "%s — %s\n", ev.Start.Format("15:04"), ev.Title)
			}
		}
	}

	return b.String()
}

// Template renders the deterministic fallback narrative. Its format is a
// stable contract: downstream consumers (voice shortcuts) parse it.
func Template(day Context) string {
	var b strings.Builder

	b.WriteString("Good morning! Today's weather: ")
	if w := day.Weather; w != nil {
		fmt.Fprintf(&b, "%s, %.0f°C, %d%% chance of rain.",
			strings.ToLower(w.Condition), w.TemperatureC, w.PrecipChance)
	} else {
		b.WriteString("weather unavailable.")
	}

	if len(day.Events) == 0 {
		b.WriteString(" You have no events today.")
		return b.String()
	}

	noun := "events"
	if len(day.Events) == 1 {
		noun = "event"
	}
	fmt.Fprintf(&b, " You have %d %s today: ", len(day.Events), noun)

	parts := make([]string, 0, len(day.Events))
	for _, ev := range day.Events {
		if ev.AllDay {
			parts = append(parts, "all day "+ev.Title)
		} else {
			parts = append(parts, ev.Start.Format("15:04")+" "+ev.Title)
		}
	}
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString(".")

	return b.String()
}
