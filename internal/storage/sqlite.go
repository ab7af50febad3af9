package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the OAuth credential record and
// the briefing history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "daybrief.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Credential ---

// SaveCredential replaces the single credential row. The write is a single
// UPSERT so readers never observe a partially updated record.
func (s *Store) SaveCredential(c Credential) error {
	expiry := ""
	if !c.Expiry.IsZero() {
		expiry = c.Expiry.UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(`
		INSERT INTO oauth_credentials (id, client_id, client_secret, refresh_token, access_token, expiry, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			client_id = excluded.client_id,
			client_secret = excluded.client_secret,
			refresh_token = excluded.refresh_token,
			access_token = excluded.access_token,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at`,
		c.ClientID, c.ClientSecret, c.RefreshToken, c.AccessToken, expiry,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetCredential returns the stored credential record, or ErrNotFound if
// interactive authorization was never completed.
func (s *Store) GetCredential() (Credential, error) {
	var c Credential
	var expiry, updatedAt string
	err := s.db.QueryRow(`
		SELECT client_id, client_secret, refresh_token, access_token, expiry, updated_at
		FROM oauth_credentials WHERE id = 1`,
	).Scan(&c.ClientID, &c.ClientSecret, &c.RefreshToken, &c.AccessToken, &expiry, &updatedAt)
	if err == sql.ErrNoRows {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, err
	}
	if expiry != "" {
		t, err := time.Parse(time.RFC3339, expiry)
		if err != nil {
			return Credential{}, fmt.Errorf("parsing expiry: %w", err)
		}
		c.Expiry = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		c.UpdatedAt = t
	}
	return c, nil
}

// DeleteCredential removes the stored credential (used when the refresh
// token was revoked and re-authorization is required).
func (s *Store) DeleteCredential() error {
	res, err := s.db.Exec(`DELETE FROM oauth_credentials WHERE id = 1`)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Briefings ---

func (s *Store) SaveBriefing(b Briefing) error {
	_, err := s.db.Exec(`
		INSERT INTO briefings (id, created_at, narrative, weather_json, events_json, weather_failed, calendar_failed, narrative_fallback)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.CreatedAt.UTC().Format(time.RFC3339), b.Narrative,
		b.WeatherJSON, b.EventsJSON,
		boolToInt(b.WeatherFailed), boolToInt(b.CalendarFailed), boolToInt(b.NarrativeFallback),
	)
	return err
}

func (s *Store) GetBriefing(id string) (Briefing, error) {
	row := s.db.QueryRow(`
		SELECT id, created_at, narrative, weather_json, events_json, weather_failed, calendar_failed, narrative_fallback
		FROM briefings WHERE id = ?`, id)
	b, err := scanBriefing(row)
	if err == sql.ErrNoRows {
		return Briefing{}, ErrNotFound
	}
	return b, err
}

func (s *Store) ListBriefings(limit int) ([]Briefing, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, narrative, weather_json, events_json, weather_failed, calendar_failed, narrative_fallback
		FROM briefings ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Briefing
	for rows.Next() {
		b, err := scanBriefing(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, b)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBriefing(row rowScanner) (Briefing, error) {
	var b Briefing
	var createdAt string
	var wf, cf, nf int
	if err := row.Scan(&b.ID, &createdAt, &b.Narrative, &b.WeatherJSON, &b.EventsJSON, &wf, &cf, &nf); err != nil {
		return Briefing{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Briefing{}, fmt.Errorf("parsing created_at: %w", err)
	}
	b.CreatedAt = t
	b.WeatherFailed = wf != 0
	b.CalendarFailed = cf != 0
	b.NarrativeFallback = nf != 0
	return b, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
