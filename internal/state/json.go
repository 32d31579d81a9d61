package state

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	logx "newsbot/pkg/logx"
)

// jsonStore persists the seen-set as one human-inspectable JSON file.
//
// Commit writes to a temp file in the same directory, fsyncs, then renames
// over the old file, so a crash at any point leaves either the old or the
// new state on disk, never a partial write.
type jsonStore struct {
	cfg Config
	log logx.Logger
}

// stateFile is the on-disk layout. Decoding ignores unknown fields, so files
// written by a newer version still load here.
type stateFile struct {
	Schema    int       `json:"schema"`
	SeenIDs   []string  `json:"seen_ids"`
	UpdatedAt time.Time `json:"updated_at"`
}

const stateSchemaVersion = 1

func openJSON(cfg Config, log logx.Logger) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	return &jsonStore{cfg: cfg, log: log}, nil
}

func (s *jsonStore) Load(ctx context.Context) (*SeenState, error) {
	_ = ctx
	b, err := os.ReadFile(s.cfg.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewSeenState(), nil
	}
	if err != nil {
		return nil, err
	}

	var f stateFile
	if err := json.Unmarshal(b, &f); err != nil {
		if resetOnCorrupt(s.cfg) {
			s.log.Warn("seen-state unreadable; starting empty per on_corrupt=reset",
				logx.String("path", s.cfg.Path), logx.Err(err))
			return NewSeenState(), nil
		}
		return nil, &CorruptError{Path: s.cfg.Path, Err: err}
	}

	st := NewSeenState(f.SeenIDs...)
	s.log.Debug("seen-state loaded", logx.String("path", s.cfg.Path), logx.Int("ids", st.Len()))
	return st, nil
}

func (s *jsonStore) Commit(ctx context.Context, st *SeenState) error {
	_ = ctx
	f := stateFile{
		Schema:    stateSchemaVersion,
		SeenIDs:   st.IDs(),
		UpdatedAt: time.Now().UTC(),
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.cfg.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.cfg.Path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	// Best-effort cleanup if anything below fails before the rename.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.cfg.Path); err != nil {
		return err
	}
	// Persist the rename itself.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	s.log.Debug("seen-state committed", logx.String("path", s.cfg.Path), logx.Int("ids", st.Len()))
	return nil
}

func (s *jsonStore) Close() error { return nil }
