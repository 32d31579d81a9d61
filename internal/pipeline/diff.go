package pipeline

import (
	"newsbot/internal/feed"
	"newsbot/internal/state"
)

// Diff returns the fetched records whose id is absent from seen, preserving
// fetch order. Pure function; exact id equality only — never title matching,
// which would both merge reworded articles and split retitled ones.
func Diff(fetched []feed.Article, seen *state.SeenState) []feed.Article {
	var out []feed.Article
	for _, a := range fetched {
		if !seen.Contains(a.ID) {
			out = append(out, a)
		}
	}
	return out
}
