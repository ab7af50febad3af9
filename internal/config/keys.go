package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "DAYBRIEF_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "DAYBRIEF_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "weather.api_key", typ: kString, env: "DAYBRIEF_WEATHER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Weather.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Weather.APIKey },
	},
	{
		key: "weather.location", typ: kString, env: "DAYBRIEF_WEATHER_LOCATION",
		apply:   func(cfg *Config, v any) { cfg.Weather.Location = v.(string) },
		extract: func(cfg Config) any { return cfg.Weather.Location },
	},
	{
		key: "calendar.source", typ: kString, env: "DAYBRIEF_CALENDAR_SOURCE",
		apply:   func(cfg *Config, v any) { cfg.Calendar.Source = v.(string) },
		extract: func(cfg Config) any { return cfg.Calendar.Source },
	},
	{
		key: "calendar.calendar_id", typ: kString, env: "DAYBRIEF_CALENDAR_ID",
		apply:   func(cfg *Config, v any) { cfg.Calendar.CalendarID = v.(string) },
		extract: func(cfg Config) any { return cfg.Calendar.CalendarID },
	},
	{
		key: "calendar.ics_url", typ: kString, env: "DAYBRIEF_CALENDAR_ICS_URL",
		apply:   func(cfg *Config, v any) { cfg.Calendar.ICSURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Calendar.ICSURL },
	},
	{
		key: "calendar.timezone", typ: kString, env: "DAYBRIEF_CALENDAR_TIMEZONE",
		apply:   func(cfg *Config, v any) { cfg.Calendar.Timezone = v.(string) },
		extract: func(cfg Config) any { return cfg.Calendar.Timezone },
	},
	{
		key: "google.client_id", typ: kString, env: "DAYBRIEF_GOOGLE_CLIENT_ID",
		apply:   func(cfg *Config, v any) { cfg.Google.ClientID = v.(string) },
		extract: func(cfg Config) any { return cfg.Google.ClientID },
	},
	{
		key: "google.client_secret", typ: kString, env: "DAYBRIEF_GOOGLE_CLIENT_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Google.ClientSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Google.ClientSecret },
	},
	{
		key: "google.redirect_uri", typ: kString, env: "DAYBRIEF_GOOGLE_REDIRECT_URI",
		apply:   func(cfg *Config, v any) { cfg.Google.RedirectURI = v.(string) },
		extract: func(cfg Config) any { return cfg.Google.RedirectURI },
	},
	{
		key: "llm.api_key", typ: kString, env: "DAYBRIEF_LLM_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.model", typ: kString, env: "DAYBRIEF_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.base_url", typ: kString, env: "DAYBRIEF_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DAYBRIEF_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "DAYBRIEF_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
