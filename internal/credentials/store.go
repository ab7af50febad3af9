// Package credentials manages the delegated-access OAuth2 credential for
// the calendar provider: persistence, expiry tracking, and transparent
// access-token refresh via the refresh-token grant.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/daybrief/internal/storage"
)

const (
	defaultAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	calendarScope   = "https://www.googleapis.com/auth/calendar.readonly"

	// expiryMargin: a token this close to expiry is treated as expired so
	// it cannot lapse mid-request.
	expiryMargin = 60 * time.Second

	defaultTimeout = 15 * time.Second
)

// ErrNoCredential indicates interactive authorization was never completed:
// there is no stored record and no network call is attempted.
var ErrNoCredential = errors.New("no stored credential; run `daybrief auth` first")

// RefreshError is returned when the provider rejects the refresh token
// (revoked or expired). It is terminal for the current request and must
// not be retried in a loop.
type RefreshError struct {
	Status      int
	Code        string
	Description string
}

func (e *RefreshError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("token refresh rejected (HTTP %d): %s: %s", e.Status, e.Code, e.Description)
	}
	return fmt.Sprintf("token refresh rejected (HTTP %d)", e.Status)
}

// Persistence is the slice of storage the store needs.
type Persistence interface {
	GetCredential() (storage.Credential, error)
	SaveCredential(storage.Credential) error
}

// ClientConfig is the OAuth2 client registration used for the interactive
// consent flow and as a fallback when the stored record predates it.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Store owns the single credential record and serializes refreshes.
type Store struct {
	persistence Persistence
	client      ClientConfig
	authURL     string
	tokenURL    string
	httpClient  *http.Client

	// mu guards the refresh-and-persist step so concurrent requests never
	// race two refresh calls against the provider.
	mu sync.Mutex
}

// New creates a Store backed by the given persistence layer.
func New(p Persistence, client ClientConfig) *Store {
	return &Store{
		persistence: p,
		client:      client,
		authURL:     defaultAuthURL,
		tokenURL:    defaultTokenURL,
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
}

// NewWithEndpoints creates a Store pointing at custom OAuth endpoints (for testing).
func NewWithEndpoints(p Persistence, client ClientConfig, authURL, tokenURL string) *Store {
	s := New(p, client)
	s.authURL = strings.TrimRight(authURL, "/")
	s.tokenURL = strings.TrimRight(tokenURL, "/")
	return s
}

// Token returns a non-expired access token, refreshing transparently when
// the current one is expired or within the safety margin of expiry.
//
// Returns ErrNoCredential when no record exists and *RefreshError when the
// provider rejects the refresh token.
func (s *Store) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, err := s.persistence.GetCredential()
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("loading credential: %w", err)
	}

	if cred.AccessToken != "" && time.Until(cred.Expiry) > expiryMargin {
		return cred.AccessToken, nil
	}

	refreshed, err := s.refresh(ctx, cred)
	if err != nil {
		return "", err
	}

	// Persist before handing the token out: after a successful refresh the
	// previous token must never be referenced again.
	if err := s.persistence.SaveCredential(refreshed); err != nil {
		return "", fmt.Errorf("persisting refreshed credential: %w", err)
	}

	slog.Info("access token refreshed", "expiry", refreshed.Expiry)
	return refreshed.AccessToken, nil
}

// tokenResponse mirrors the provider token endpoint JSON.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (s *Store) refresh(ctx context.Context, cred storage.Credential) (storage.Credential, error) {
	clientID, clientSecret := cred.ClientID, cred.ClientSecret
	if clientID == "" {
		clientID, clientSecret = s.client.ClientID, s.client.ClientSecret
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {cred.RefreshToken},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	}

	resp, err := s.postForm(ctx, s.tokenURL, form)
	if err != nil {
		return storage.Credential{}, fmt.Errorf("calling token endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return storage.Credential{}, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var te tokenErrorResponse
		_ = json.Unmarshal(body, &te)
		return storage.Credential{}, &RefreshError{
			Status:      resp.StatusCode,
			Code:        te.Error,
			Description: te.ErrorDescription,
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return storage.Credential{}, fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return storage.Credential{}, fmt.Errorf("token endpoint returned no access token")
	}

	cred.AccessToken = tr.AccessToken
	cred.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	// Some providers rotate the refresh token on use.
	if tr.RefreshToken != "" {
		cred.RefreshToken = tr.RefreshToken
	}
	return cred, nil
}

// AuthURL returns the provider consent URL for the interactive
// authorization flow. offline access is requested so a refresh token is
// issued.
func (s *Store) AuthURL(state string) string {
	q := url.Values{
		"client_id":     {s.client.ClientID},
		"redirect_uri":  {s.client.RedirectURI},
		"response_type": {"code"},
		"scope":         {calendarScope},
		"access_type":   {"offline"},
		"prompt":        {"consent"},
	}
	if state != "" {
		q.Set("state", state)
	}
	return s.authURL + "?" + q.Encode()
}

// Exchange trades an authorization code for tokens and persists the
// resulting credential record, completing the interactive flow.
func (s *Store) Exchange(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {s.client.ClientID},
		"client_secret": {s.client.ClientSecret},
		"redirect_uri":  {s.client.RedirectURI},
	}

	resp, err := s.postForm(ctx, s.tokenURL, form)
	if err != nil {
		return fmt.Errorf("calling token endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("code exchange failed (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return fmt.Errorf("decoding token response: %w", err)
	}
	if tr.RefreshToken == "" {
		return fmt.Errorf("provider issued no refresh token; re-run consent with prompt=consent")
	}

	cred := storage.Credential{
		ClientID:     s.client.ClientID,
		ClientSecret: s.client.ClientSecret,
		RefreshToken: tr.RefreshToken,
		AccessToken:  tr.AccessToken,
		Expiry:       time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	if err := s.persistence.SaveCredential(cred); err != nil {
		return fmt.Errorf("persisting credential: %w", err)
	}

	slog.Info("authorization completed, credential stored")
	return nil
}

func (s *Store) postForm(ctx context.Context, endpoint string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.httpClient.Do(req)
}
