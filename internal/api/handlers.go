// Package api exposes daybrief over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/daybrief/internal/briefing"
	"github.com/kalambet/daybrief/internal/storage"
)

// Runner generates a fresh briefing on demand.
type Runner interface {
	Run(ctx context.Context) briefing.Result
}

// HistoryReader serves stored briefings.
type HistoryReader interface {
	GetBriefing(id string) (storage.Briefing, error)
	ListBriefings(limit int) ([]storage.Briefing, error)
}

// Exchanger completes the OAuth2 consent flow for an authorization code.
type Exchanger interface {
	Exchange(ctx context.Context, code string) error
}

// AppDeps holds dependencies for the HTTP handler.
type AppDeps struct {
	Runner      Runner
	History     HistoryReader // optional; history routes return 404 content when nil
	Credentials Exchanger     // optional; callback returns an error when nil
	Token       string
}

// NewAppHandler returns the daybrief HTTP API. Briefing and history routes
// sit behind bearer auth when a token is configured; health, the index
// page and the OAuth callback stay open.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/", handleIndex)
	r.Get("/oauth2/callback", handleOAuthCallback(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/briefing", handleBriefing(deps))
		r.Get("/briefing/text", handleBriefingText(deps))
		r.Get("/briefings", handleListBriefings(deps))
		r.Get("/briefings/{id}", handleGetBriefing(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func handleBriefing(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := deps.Runner.Run(r.Context())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

// handleBriefingText returns the bare narrative for voice shortcuts and
// other plain-text consumers.
func handleBriefingText(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := deps.Runner.Run(r.Context())
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, result.Narrative)
	}
}

func handleListBriefings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.History == nil {
			httpError(w, http.StatusNotFound, "not_found", "briefing history is not enabled")
			return
		}

		limit := parseIntParam(r, "limit", 20, 100)
		briefings, err := deps.History.ListBriefings(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list briefings: %v", err)
			return
		}
		if briefings == nil {
			briefings = []storage.Briefing{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(briefings)
	}
}

func handleGetBriefing(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.History == nil {
			httpError(w, http.StatusNotFound, "not_found", "briefing history is not enabled")
			return
		}

		id := chi.URLParam(r, "id")
		b, err := deps.History.GetBriefing(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "briefing not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get briefing: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(b)
	}
}

func handleOAuthCallback(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Credentials == nil {
			httpError(w, http.StatusNotFound, "not_found", "calendar authorization is not configured")
			return
		}

		if errMsg := r.URL.Query().Get("error"); errMsg != "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "authorization denied: %s", errMsg)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "code is required")
			return
		}

		if err := deps.Credentials.Exchange(r.Context(), code); err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to exchange authorization code: %v", err)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><p>Calendar connected. You can close this tab.</p></body></html>")
	}
}

func handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<html><body>
<h1>daybrief</h1>
<p>Morning briefing service.</p>
<ul>
<li><code>GET /briefing</code> &mdash; full briefing as JSON</li>
<li><code>GET /briefing/text</code> &mdash; narrative as plain text</li>
<li><code>GET /briefings</code> &mdash; history</li>
<li><code>GET /health</code> &mdash; liveness</li>
</ul>
</body></html>`)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
