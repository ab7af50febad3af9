package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server   ServerConfig
	Weather  WeatherConfig
	Calendar CalendarConfig
	Google   GoogleConfig
	LLM      LLMConfig
	Storage  StorageConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port  int
	Token string // optional bearer token for briefing endpoints; empty disables auth
}

type WeatherConfig struct {
	APIKey   string
	Location string
}

type CalendarConfig struct {
	Source     string // "google" or "ics"
	CalendarID string
	ICSURL     string
	Timezone   string // IANA name, or "Local" for the server's zone
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

type LLMConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4200,
		},
		Weather: WeatherConfig{
			Location: "London",
		},
		Calendar: CalendarConfig{
			Source:     "google",
			CalendarID: "primary",
			Timezone:   "Local",
		},
		Google: GoogleConfig{
			RedirectURI: "http://localhost:4200/oauth2/callback",
		},
		LLM: LLMConfig{
			Model:   "gpt-4o-mini",
			BaseURL: "https://api.openai.com/v1",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/daybrief/config.json and applies DAYBRIEF_* environment
// variable overrides on top. Secrets (API keys, OAuth client secret) are
// only ever read from the environment and never written to the backend.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Weather.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: AccuWeather API key. Set DAYBRIEF_WEATHER_API_KEY")
	}
	if cfg.LLM.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: LLM API key. Set DAYBRIEF_LLM_API_KEY")
	}

	return cfg, nil
}

// Location resolves the configured calendar timezone. "Local" (or empty)
// means the server's own zone; the user's day window is computed here,
// never in UTC.
func (c Config) Location() (*time.Location, error) {
	name := c.Calendar.Timezone
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", name, err)
	}
	return loc, nil
}
