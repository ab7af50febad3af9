package config

import (
	"strconv"
	"testing"
)

// mapBackend is an in-memory Backend for tests.
type mapBackend struct {
	data map[string]any
}

func newMapBackend() *mapBackend {
	return &mapBackend{data: make(map[string]any)}
}

func (b *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (b *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	switch val := v.(type) {
	case int:
		return val, true, nil
	case string:
		i, err := strconv.Atoi(val)
		return i, true, err
	}
	return 0, true, nil
}

func (b *mapBackend) SetString(key, val string) error { b.data[key] = val; return nil }
func (b *mapBackend) SetInt(key string, val int) error { b.data[key] = val; return nil }
func (b *mapBackend) Delete(key string) error          { delete(b.data, key); return nil }

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DAYBRIEF_WEATHER_API_KEY", "wk")
	t.Setenv("DAYBRIEF_LLM_API_KEY", "lk")

	cfg, err := loadWith(newMapBackend())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 4200 {
		t.Errorf("Port = %d, want 4200", cfg.Server.Port)
	}
	if cfg.Calendar.Source != "google" {
		t.Errorf("Calendar.Source = %q, want google", cfg.Calendar.Source)
	}
	if cfg.Calendar.CalendarID != "primary" {
		t.Errorf("CalendarID = %q, want primary", cfg.Calendar.CalendarID)
	}
	if cfg.Weather.Location != "London" {
		t.Errorf("Weather.Location = %q, want London", cfg.Weather.Location)
	}
}

func TestLoad_BackendValues(t *testing.T) {
	t.Setenv("DAYBRIEF_WEATHER_API_KEY", "wk")
	t.Setenv("DAYBRIEF_LLM_API_KEY", "lk")

	b := newMapBackend()
	b.data["server.port"] = 9999
	b.data["weather.location"] = "Lisbon"
	b.data["calendar.timezone"] = "Europe/Lisbon"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Weather.Location != "Lisbon" {
		t.Errorf("Location = %q, want Lisbon", cfg.Weather.Location)
	}
	if cfg.Calendar.Timezone != "Europe/Lisbon" {
		t.Errorf("Timezone = %q, want Europe/Lisbon", cfg.Calendar.Timezone)
	}
}

func TestLoad_EnvOverridesBackend(t *testing.T) {
	t.Setenv("DAYBRIEF_WEATHER_API_KEY", "wk")
	t.Setenv("DAYBRIEF_LLM_API_KEY", "lk")
	t.Setenv("DAYBRIEF_WEATHER_LOCATION", "Tokyo")

	b := newMapBackend()
	b.data["weather.location"] = "Lisbon"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Weather.Location != "Tokyo" {
		t.Errorf("Location = %q, want env override Tokyo", cfg.Weather.Location)
	}
}

func TestLoad_MissingWeatherKey(t *testing.T) {
	t.Setenv("DAYBRIEF_WEATHER_API_KEY", "")
	t.Setenv("DAYBRIEF_LLM_API_KEY", "lk")

	if _, err := loadWith(newMapBackend()); err == nil {
		t.Fatal("expected error for missing weather API key")
	}
}

func TestSet_RejectsSecrets(t *testing.T) {
	b := newMapBackend()
	if err := setWith(b, "llm.api_key", "sk-123"); err == nil {
		t.Fatal("expected secret keys to be rejected")
	}
	if _, ok := b.data["llm.api_key"]; ok {
		t.Fatal("secret must not be written to backend")
	}
}

func TestSet_UnknownKey(t *testing.T) {
	if err := setWith(newMapBackend(), "nope.nope", "x"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLocation_Named(t *testing.T) {
	cfg := defaults()
	cfg.Calendar.Timezone = "Europe/London"
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if loc.String() != "Europe/London" {
		t.Errorf("loc = %s, want Europe/London", loc)
	}
}

func TestLocation_Invalid(t *testing.T) {
	cfg := defaults()
	cfg.Calendar.Timezone = "Not/AZone"
	if _, err := cfg.Location(); err == nil {
		t.Fatal("expected error for bogus timezone")
	}
}
