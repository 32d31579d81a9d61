package pipeline

import (
	"testing"

	"newsbot/internal/feed"
	"newsbot/internal/state"
)

func TestDiffPreservesOrder(t *testing.T) {
	t.Parallel()
	fetched := []feed.Article{
		{ID: "a", Title: "A"},
		{ID: "b", Title: "B"},
		{ID: "c", Title: "C"},
	}
	seen := state.NewSeenState("a")

	got := Diff(fetched, seen)
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "c" {
		t.Fatalf("order not preserved: %v, %v", got[0].ID, got[1].ID)
	}
}

func TestDiffExactIDEquality(t *testing.T) {
	t.Parallel()
	// Same title, different id: must be treated as new. Titles are never
	// compared.
	fetched := []feed.Article{{ID: "x2", Title: "Same title"}}
	seen := state.NewSeenState("x1")

	if got := Diff(fetched, seen); len(got) != 1 {
		t.Fatalf("fuzzy matching suspected: got %d records, want 1", len(got))
	}
}

func TestDiffAllSeen(t *testing.T) {
	t.Parallel()
	fetched := []feed.Article{{ID: "a"}, {ID: "b"}}
	seen := state.NewSeenState("a", "b")

	if got := Diff(fetched, seen); len(got) != 0 {
		t.Fatalf("got %d records, want 0", len(got))
	}
}

func TestDiffEmptyFetch(t *testing.T) {
	t.Parallel()
	if got := Diff(nil, state.NewSeenState("a")); len(got) != 0 {
		t.Fatalf("got %d records from empty fetch", len(got))
	}
}
