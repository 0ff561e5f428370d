// Package history stores request dumps in a SQLite database so earlier
// exchanges can be listed and inspected again.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/requester/packages/http"
	"github.com/google/uuid"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by Get when no entry has the given id
var ErrNotFound = errors.New("history entry not found")

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id          TEXT PRIMARY KEY,
	created_at  INTEGER NOT NULL,
	method      TEXT NOT NULL,
	url         TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	dump        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS entries_created_at ON entries (created_at);
`

// Entry is one saved exchange. Dump is only loaded by Get.
type Entry struct {
	ID         string        `json:"id" yaml:"id"`
	CreatedAt  time.Time     `json:"created_at" yaml:"created_at"`
	Method     string        `json:"method" yaml:"method"`
	URL        string        `json:"url" yaml:"url"`
	StatusCode int           `json:"status_code" yaml:"status_code"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	Dump       *http.Dump    `json:"dump,omitempty" yaml:"dump,omitempty"`
}

// Store is a SQLite backed history
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path. Both plain paths and
// sqlite:// or sqlite: prefixed ones are accepted.
func Open(path string) (*Store, error) {
	dsn := parseConnectionString(path)
	if dsn == "" {
		return nil, fmt.Errorf("history path is empty")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serialises writers anyway
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func parseConnectionString(connStr string) string {
	connStr = strings.TrimSpace(connStr)
	if strings.HasPrefix(connStr, "sqlite://") {
		return strings.TrimPrefix(connStr, "sqlite://")
	}
	return strings.TrimPrefix(connStr, "sqlite:")
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save stores the dump and returns the id of the new entry. Dumps of
// requesters that never completed a request are stored with status 0.
func (s *Store) Save(ctx context.Context, d *http.Dump) (string, error) {
	if d == nil {
		return "", fmt.Errorf("nothing to save")
	}

	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to encode dump: %w", err)
	}

	e := Entry{
		ID:        uuid.NewString(),
		CreatedAt: s.now(),
		Method:    d.Outgoing.Method,
		URL:       d.Outgoing.URL,
	}
	if info := d.Incoming.Info; info != nil {
		e.Method = info.Method
		e.URL = info.URL
		e.StatusCode = info.StatusCode
		e.Duration = info.Duration
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries (id, created_at, method, url, status_code, duration_ns, dump) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CreatedAt.UnixNano(), e.Method, e.URL, e.StatusCode, int64(e.Duration), string(data),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save entry: %w", err)
	}
	return e.ID, nil
}

// List returns the most recent entries first. A limit of 0 or less returns
// every entry.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, created_at, method, url, status_code, duration_ns FROM entries ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var created, duration int64
		if err := rows.Scan(&e.ID, &created, &e.Method, &e.URL, &e.StatusCode, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		e.CreatedAt = time.Unix(0, created)
		e.Duration = time.Duration(duration)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

// Get loads one entry with its dump
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	var e Entry
	var created, duration int64
	var data string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, method, url, status_code, duration_ns, dump FROM entries WHERE id = ?`, id,
	).Scan(&e.ID, &created, &e.Method, &e.URL, &e.StatusCode, &duration, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	e.CreatedAt = time.Unix(0, created)
	e.Duration = time.Duration(duration)
	e.Dump = &http.Dump{}
	if err := json.Unmarshal([]byte(data), e.Dump); err != nil {
		return nil, &http.DecodeError{Format: "json", Err: err}
	}
	return &e, nil
}

// Prune deletes all but the newest keep entries and reports how many were removed
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE id NOT IN (SELECT id FROM entries ORDER BY created_at DESC, rowid DESC LIMIT ?)`, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune failed: %w", err)
	}
	return res.RowsAffected()
}
