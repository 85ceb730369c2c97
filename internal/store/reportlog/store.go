// Package reportlog archives generated diff and rollup reports so a past
// comparison can be reopened exactly as it was rendered.
package reportlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"radar/internal/logger"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("report not found")

// Entry is one archived report.
type Entry struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	Params    map[string]string `json:"params,omitempty"`
	Summary   string            `json:"summary,omitempty"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Query filters List.
type Query struct {
	Kind   string
	Limit  int
	Offset int
}

// Store is the SQLite-backed archive.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// Open creates the archive database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("report log path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS report_runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			params TEXT,
			summary TEXT,
			payload TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_report_runs_kind_ts ON report_runs(kind, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("report log schema: %w", err)
		}
	}
	return nil
}

func (s *Store) handle() (*sql.DB, error) {
	if s == nil {
		return nil, fmt.Errorf("report log not initialized")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("report log closed")
	}
	return s.db, nil
}

// Save archives payload under kind and returns the new id.
func (s *Store) Save(ctx context.Context, kind string, params map[string]string, summary string, payload any) (string, error) {
	db, err := s.handle()
	if err != nil {
		return "", err
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return "", fmt.Errorf("report kind required")
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", kind, err)
	}
	id := uuid.NewString()
	_, err = db.ExecContext(ctx,
		`INSERT INTO report_runs (id, kind, params, summary, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, kind, string(paramsJSON), summary, string(payloadJSON), s.now().UnixMilli())
	if err != nil {
		return "", err
	}
	logger.Debugf("report log: archived %s id=%s (%d bytes)", kind, id, len(payloadJSON))
	return id, nil
}

// List returns entries newest first, without payloads.
func (s *Store) List(ctx context.Context, q Query) ([]Entry, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	query := `SELECT id, kind, params, summary, created_at FROM report_runs`
	args := []any{}
	if kind := strings.TrimSpace(q.Kind); kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			params  sql.NullString
			summary sql.NullString
			ts      int64
		)
		if err := rows.Scan(&e.ID, &e.Kind, &params, &summary, &ts); err != nil {
			return nil, err
		}
		if err := decodeParams(params, &e); err != nil {
			return nil, err
		}
		e.Summary = summary.String
		e.CreatedAt = time.UnixMilli(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get returns one entry including its payload.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	db, err := s.handle()
	if err != nil {
		return Entry{}, err
	}
	var (
		e       Entry
		params  sql.NullString
		summary sql.NullString
		payload sql.NullString
		ts      int64
	)
	err = db.QueryRowContext(ctx,
		`SELECT id, kind, params, summary, payload, created_at FROM report_runs WHERE id = ?`,
		strings.TrimSpace(id)).Scan(&e.ID, &e.Kind, &params, &summary, &payload, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	if err := decodeParams(params, &e); err != nil {
		return Entry{}, err
	}
	e.Summary = summary.String
	if payload.Valid && payload.String != "" {
		e.Payload = json.RawMessage(payload.String)
	}
	e.CreatedAt = time.UnixMilli(ts)
	return e, nil
}

func decodeParams(raw sql.NullString, e *Entry) error {
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw.String), &e.Params)
}
