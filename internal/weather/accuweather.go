// Package weather fetches a one-day forecast from AccuWeather and
// normalizes it into a single metric-Celsius snapshot.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultBaseURL = "https://dataservice.accuweather.com"
	defaultTimeout = 15 * time.Second
)

// Snapshot is one normalized read of current conditions plus the day's
// forecast. All temperatures are metric Celsius.
type Snapshot struct {
	Location     string    `json:"location"`
	Condition    string    `json:"condition"` // current conditions text, e.g. "light rain"
	TemperatureC float64   `json:"temperature_c"`
	MinC         float64   `json:"min_c"`
	MaxC         float64   `json:"max_c"`
	PrecipChance int       `json:"precip_chance"` // day precipitation probability, percent
	Summary      string    `json:"summary"`       // day forecast phrase
	ObservedAt   time.Time `json:"observed_at"`
}

// FetchError carries the provider error for diagnostics. One per failed
// call; the adapter never retries.
type FetchError struct {
	Status  int
	Message string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("weather fetch failed (HTTP %d): %s", e.Status, e.Message)
}

// Client talks to the AccuWeather data service.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	// AccuWeather free tiers are tightly rate limited; location keys are
	// stable, so cache them per query for the process lifetime.
	mu           sync.Mutex
	locationKeys map[string]string
}

// NewClient creates an AccuWeather client with the given API key.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		locationKeys: make(map[string]string),
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// Forecast resolves the free-text location and returns one Snapshot.
// A single failed provider call yields a *FetchError; no retries.
func (c *Client) Forecast(ctx context.Context, location string) (*Snapshot, error) {
	key, err := c.locationKey(ctx, location)
	if err != nil {
		return nil, err
	}

	current, err := c.currentConditions(ctx, key)
	if err != nil {
		return nil, err
	}

	daily, err := c.dailyForecast(ctx, key)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Location:     location,
		Condition:    current.WeatherText,
		TemperatureC: current.Temperature.Metric.Value,
		MinC:         daily.Temperature.Minimum.Value,
		MaxC:         daily.Temperature.Maximum.Value,
		PrecipChance: daily.Day.PrecipitationProbability,
		Summary:      daily.Day.IconPhrase,
		ObservedAt:   time.Now(),
	}, nil
}

type locationResult struct {
	Key           string `json:"Key"`
	LocalizedName string `json:"LocalizedName"`
}

func (c *Client) locationKey(ctx context.Context, query string) (string, error) {
	c.mu.Lock()
	if key, ok := c.locationKeys[query]; ok {
		c.mu.Unlock()
		return key, nil
	}
	c.mu.Unlock()

	q := url.Values{"apikey": {c.apiKey}, "q": {query}}
	var results []locationResult
	if err := c.getJSON(ctx, "/locations/v1/cities/search?"+q.Encode(), &results); err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", &FetchError{Status: http.StatusOK, Message: fmt.Sprintf("location %q not found", query)}
	}

	key := results[0].Key
	c.mu.Lock()
	c.locationKeys[query] = key
	c.mu.Unlock()
	return key, nil
}

type currentResult struct {
	WeatherText string `json:"WeatherText"`
	Temperature struct {
		Metric struct {
			Value float64 `json:"Value"`
		} `json:"Metric"`
	} `json:"Temperature"`
}

func (c *Client) currentConditions(ctx context.Context, key string) (currentResult, error) {
	q := url.Values{"apikey": {c.apiKey}, "details": {"true"}}
	var results []currentResult
	if err := c.getJSON(ctx, "/currentconditions/v1/"+key+"?"+q.Encode(), &results); err != nil {
		return currentResult{}, err
	}
	if len(results) == 0 {
		return currentResult{}, &FetchError{Status: http.StatusOK, Message: "empty current conditions response"}
	}
	return results[0], nil
}

type dailyResult struct {
	Temperature struct {
		Minimum struct {
			Value float64 `json:"Value"`
		} `json:"Minimum"`
		Maximum struct {
			Value float64 `json:"Value"`
		} `json:"Maximum"`
	} `json:"Temperature"`
	Day struct {
		IconPhrase               string `json:"IconPhrase"`
		PrecipitationProbability int    `json:"PrecipitationProbability"`
	} `json:"Day"`
}

func (c *Client) dailyForecast(ctx context.Context, key string) (dailyResult, error) {
	q := url.Values{"apikey": {c.apiKey}, "metric": {"true"}}
	var resp struct {
		DailyForecasts []dailyResult `json:"DailyForecasts"`
	}
	if err := c.getJSON(ctx, "/forecasts/v1/daily/1day/"+key+"?"+q.Encode(), &resp); err != nil {
		return dailyResult{}, err
	}
	if len(resp.DailyForecasts) == 0 {
		return dailyResult{}, &FetchError{Status: http.StatusOK, Message: "empty daily forecast response"}
	}
	return resp.DailyForecasts[0], nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &FetchError{Status: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &FetchError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{Status: resp.StatusCode, Message: fmt.Sprintf("decoding response: %v", err)}
	}
	return nil
}
