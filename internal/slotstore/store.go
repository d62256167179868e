package slotstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/stimmlabs/stimm-core/internal/config"
	_ "modernc.org/sqlite"
)

// Store persists named JSON slots in a single SQLite table. It owns the
// serialization boundary exclusively: consumers hand it Go values and
// receive Go values back, never raw JSON.
type Store struct {
	db    *sql.DB
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the slot store at the configured path, creating the
// schema on first use.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS slots (
    name TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads a slot into v. A missing slot, or one whose payload no longer
// parses as JSON, leaves v untouched and reports false so the caller keeps
// its default. Only infrastructure failures surface as errors.
func (s *Store) Load(ctx context.Context, name string, v any) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM slots WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read slot %q: %w", name, err)
	}
	if err := json.Unmarshal([]byte(value), v); err != nil {
		s.log.Warn("slot holds unparsable value, falling back to default",
			slog.String("slot", name),
			slog.String("error", err.Error()))
		return false, nil
	}
	return true, nil
}

// Save serializes v and writes it through to the named slot, replacing any
// previous value in one statement.
func (s *Store) Save(ctx context.Context, name string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("serialize slot %q: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO slots(name, value, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		name, string(value), s.clock().UTC())
	if err != nil {
		return fmt.Errorf("write slot %q: %w", name, err)
	}
	return nil
}

// Delete removes a slot. Deleting an absent slot is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete slot %q: %w", name, err)
	}
	return nil
}
