package state

import (
	"fmt"
	"sort"
	"time"
)

// Config configures the seen-state store.
//
// Driver values:
//   - "json": single human-inspectable JSON file, atomic replace on commit
//   - "sqlite": SQLite database file
//
// If Driver is empty, "json" is used.
type Config struct {
	Driver string
	Path   string

	// OnCorrupt: "abort" (default) fails Load when existing state cannot be
	// parsed; "reset" logs and starts from an empty set.
	OnCorrupt string

	BusyTimeout time.Duration // sqlite only; 0 means default
}

// CorruptError reports persisted state that exists but cannot be read as
// valid identifier data. Treating it as empty would re-notify the entire
// backlog, so the default policy is to abort.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("seen-state %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// SeenState is the in-memory set of article ids that have already triggered
// a notification. It is transient between Load and Commit; Add never touches
// the backing storage.
type SeenState struct {
	ids map[string]struct{}
}

func NewSeenState(ids ...string) *SeenState {
	s := &SeenState{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}
	return s
}

func (s *SeenState) Contains(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

func (s *SeenState) Add(id string) {
	if id == "" {
		return
	}
	if s.ids == nil {
		s.ids = map[string]struct{}{}
	}
	s.ids[id] = struct{}{}
}

func (s *SeenState) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// IDs returns the set sorted, for stable on-disk output.
func (s *SeenState) IDs() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
