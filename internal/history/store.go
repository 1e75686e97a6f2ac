package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"traced/internal/trace"
)

// Session statuses.
const (
	StatusRecording = "recording"
	StatusSaved     = "saved"
	StatusAborted   = "aborted"
)

// Session is one recorded start-to-stop lifecycle.
type Session struct {
	ID         string
	Kind       trace.RecordingType
	Tags       []string
	Status     string
	Artifact   string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store persists session history in SQLite. The stop path reads the
// most recent session's kind to pick the output filename prefix, which
// must survive controller restarts.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history: database path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	tags TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	artifact TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply history schema: %w", err)
	}
	return nil
}

// Begin records a newly started session and returns its id.
func (s *Store) Begin(kind trace.RecordingType, tags []string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, kind, tags, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, kind.String(), strings.Join(tags, ","), StatusRecording,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

// Finish marks a session saved with its final artifact path.
func (s *Store) Finish(id, artifact string) error {
	return s.settle(id, StatusSaved, artifact)
}

// Abort marks a session as abandoned without an artifact.
func (s *Store) Abort(id string) error {
	return s.settle(id, StatusAborted, "")
}

func (s *Store) settle(id, status, artifact string) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET status = ?, artifact = ?, finished_at = ? WHERE id = ?`,
		status, artifact, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("update session %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("update session %s: not found", id)
	}
	return nil
}

// ActiveSession returns the most recently started session still in the
// recording state, if any.
func (s *Store) ActiveSession() (Session, bool, error) {
	sessions, err := s.Recent(1)
	if err != nil {
		return Session{}, false, err
	}
	if len(sessions) == 0 || sessions[0].Status != StatusRecording {
		return Session{}, false, nil
	}
	return sessions[0], true, nil
}

// LastKind reports the recording kind of the most recently started
// session, or RecordingUnknown when there is no history.
func (s *Store) LastKind() (trace.RecordingType, error) {
	var kind string
	err := s.db.QueryRow(
		`SELECT kind FROM sessions ORDER BY started_at DESC, id DESC LIMIT 1`,
	).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return trace.RecordingUnknown, nil
	}
	if err != nil {
		return trace.RecordingUnknown, fmt.Errorf("query last session: %w", err)
	}
	return trace.ParseRecordingType(kind), nil
}

// Recent returns up to limit sessions, newest first.
func (s *Store) Recent(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, kind, tags, status, artifact, started_at, finished_at
		 FROM sessions ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			session           Session
			kind, tags        string
			started, finished string
		)
		if err := rows.Scan(&session.ID, &kind, &tags, &session.Status,
			&session.Artifact, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		session.Kind = trace.ParseRecordingType(kind)
		if tags != "" {
			session.Tags = strings.Split(tags, ",")
		}
		if t, err := time.Parse(time.RFC3339, started); err == nil {
			session.StartedAt = t
		}
		if finished != "" {
			if t, err := time.Parse(time.RFC3339, finished); err == nil {
				session.FinishedAt = t
			}
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}
