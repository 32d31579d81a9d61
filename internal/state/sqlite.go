package state

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	logx "newsbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore keeps the seen-set in a SQLite file. Commit inserts the new
// ids in one transaction; SQLite's journal makes that as crash-safe as the
// JSON driver's rename.
type sqliteStore struct {
	cfg Config
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{cfg: cfg, db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		if resetOnCorrupt(cfg) {
			return resetSQLite(cfg, log, err)
		}
		return nil, &CorruptError{Path: cfg.Path, Err: err}
	}
	return st, nil
}

// resetSQLite removes an unreadable database file and opens a fresh one.
func resetSQLite(cfg Config, log logx.Logger, cause error) (Store, error) {
	log.Warn("seen-state db unreadable; recreating per on_corrupt=reset",
		logx.String("path", cfg.Path), logx.Err(cause))
	if err := os.Remove(cfg.Path); err != nil {
		return nil, err
	}
	cfg.OnCorrupt = "abort" // avoid a remove loop if the fresh db also fails
	return openSQLite(cfg, log)
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Load(ctx context.Context) (*SeenState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM seen`)
	if err != nil {
		return nil, &CorruptError{Path: s.cfg.Path, Err: err}
	}
	defer rows.Close()

	st := NewSeenState()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &CorruptError{Path: s.cfg.Path, Err: err}
		}
		st.Add(id)
	}
	if err := rows.Err(); err != nil {
		return nil, &CorruptError{Path: s.cfg.Path, Err: err}
	}

	s.log.Debug("seen-state loaded", logx.String("path", s.cfg.Path), logx.Int("ids", st.Len()))
	return st, nil
}

func (s *sqliteStore) Commit(ctx context.Context, st *SeenState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, id := range st.IDs() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO seen(id, first_seen) VALUES(?, ?) ON CONFLICT(id) DO NOTHING`,
			id, now,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.log.Debug("seen-state committed", logx.String("path", s.cfg.Path), logx.Int("ids", st.Len()))
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
