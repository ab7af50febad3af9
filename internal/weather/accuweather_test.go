package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func fakeProvider(t *testing.T, searchCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/locations/v1/cities/search", func(w http.ResponseWriter, r *http.Request) {
		if searchCalls != nil {
			searchCalls.Add(1)
		}
		if r.URL.Query().Get("apikey") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[{"Key":"328328","LocalizedName":"London"}]`))
	})
	mux.HandleFunc("/currentconditions/v1/328328", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"WeatherText":"light rain","Temperature":{"Metric":{"Value":18.0,"Unit":"C"}}}]`))
	})
	mux.HandleFunc("/forecasts/v1/daily/1day/328328", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("metric") != "true" {
			t.Error("metric=true not requested")
		}
		w.Write([]byte(`{"DailyForecasts":[{"Temperature":{"Minimum":{"Value":12.0},"Maximum":{"Value":21.0}},"Day":{"IconPhrase":"Showers","PrecipitationProbability":60}}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestForecast(t *testing.T) {
	srv := fakeProvider(t, nil)
	c := NewClientWithBaseURL("test-key", srv.URL)

	snap, err := c.Forecast(context.Background(), "London")
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}

	if snap.Condition != "light rain" {
		t.Errorf("Condition = %q, want light rain", snap.Condition)
	}
	if snap.TemperatureC != 18.0 {
		t.Errorf("TemperatureC = %v, want 18", snap.TemperatureC)
	}
	if snap.MinC != 12.0 || snap.MaxC != 21.0 {
		t.Errorf("range = %v..%v, want 12..21", snap.MinC, snap.MaxC)
	}
	if snap.PrecipChance != 60 {
		t.Errorf("PrecipChance = %d, want 60", snap.PrecipChance)
	}
	if snap.Summary != "Showers" {
		t.Errorf("Summary = %q, want Showers", snap.Summary)
	}
	if snap.ObservedAt.IsZero() {
		t.Error("ObservedAt not set")
	}
}

func TestForecast_LocationKeyCached(t *testing.T) {
	var searches atomic.Int32
	srv := fakeProvider(t, &searches)
	c := NewClientWithBaseURL("test-key", srv.URL)

	for range 3 {
		if _, err := c.Forecast(context.Background(), "London"); err != nil {
			t.Fatalf("Forecast: %v", err)
		}
	}
	if searches.Load() != 1 {
		t.Errorf("location searches = %d, want 1 (key should be cached)", searches.Load())
	}
}

func TestForecast_LocationNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL)
	_, err := c.Forecast(context.Background(), "Nowhereville")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if !strings.Contains(fe.Message, "not found") {
		t.Errorf("Message = %q", fe.Message)
	}
}

func TestForecast_ProviderError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"Message":"ServiceUnavailable"}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL)
	_, err := c.Forecast(context.Background(), "London")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", fe.Status)
	}
	// Single attempt, no retries.
	if calls.Load() != 1 {
		t.Errorf("provider calls = %d, want 1", calls.Load())
	}
}
