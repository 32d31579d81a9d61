// Package feed fetches the municipal news listing and parses it into
// article records with stable ids.
package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// IDStrategy selects how a stable article id is derived.
type IDStrategy string

const (
	// IDFromURL hashes the canonical absolute URL. Stable as long as the
	// site keeps its URL scheme.
	IDFromURL IDStrategy = "url"
	// IDFromPage prefers a page-assigned id attribute (data-id / id) and
	// falls back to the URL hash when the attribute is absent, so a partial
	// rollout of page ids cannot mint duplicate records.
	IDFromPage IDStrategy = "page"
)

func ParseIDStrategy(s string) IDStrategy {
	if strings.EqualFold(strings.TrimSpace(s), string(IDFromPage)) {
		return IDFromPage
	}
	return IDFromURL
}

// Article is one published news item as observed at fetch time.
//
// ID is the sole de-duplication key; it is assigned at parse time and must
// be stable across repeated fetches of the same underlying article.
type Article struct {
	ID    string
	URL   string
	Title string

	// Best-effort extras; not required for correctness.
	Date    string
	Summary string
}

// HashID derives the url-based article id: sha256 of the canonical URL,
// first 16 hex characters. Matches the historical state files, so changing
// it would re-notify the entire backlog.
func HashID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:16]
}
