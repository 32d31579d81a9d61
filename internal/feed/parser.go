package feed

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	logx "newsbot/pkg/logx"
)

// ParseError signals that the overall page structure is unrecognizable
// (no article container matched and the link fallback found nothing) —
// usually an upstream page redesign. Always fatal to the current run.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "parse listing: " + e.Reason }

// defaultSelectors is the cascade of container selectors tried in order.
// The first selector with any match wins. Municipal CMSes get restyled
// without notice, hence the breadth.
var defaultSelectors = []string{
	"article",
	".news-item",
	".news-article",
	".news-list-item",
	".list-item",
	"div[class*=\"news\"]",
	".content-list article",
	".news a",
	"ul.news li",
	".panel-body a",
}

// skipPatterns marks hrefs that are navigation or social links, never articles.
var skipPatterns = []string{
	"facebook", "twitter", "instagram", "linkedin", "youtube",
	"login", "register", "mailto:", "tel:", "javascript:",
}

const minTitleLen = 5

// ParserConfig configures listing parsing.
type ParserConfig struct {
	// BaseURL resolves relative article links; normally the listing URL.
	BaseURL string
	// Selectors overrides defaultSelectors when non-empty.
	Selectors  []string
	IDStrategy IDStrategy
}

// Parser converts a raw listing page into an ordered sequence of articles.
// Deterministic: identical input produces an identical sequence, page order
// preserved (top of page first).
type Parser struct {
	base      *url.URL
	selectors []string
	strategy  IDStrategy
	log       logx.Logger
}

func NewParser(cfg ParserConfig, log logx.Logger) (*Parser, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("parser: invalid base url %q", cfg.BaseURL)
	}
	sels := cfg.Selectors
	if len(sels) == 0 {
		sels = defaultSelectors
	}
	strategy := cfg.IDStrategy
	if strategy == "" {
		strategy = IDFromURL
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Parser{base: base, selectors: sels, strategy: strategy, log: log}, nil
}

// Parse extracts articles from the raw page. A malformed individual entry is
// skipped and counted, never fatal. Entries resolving to an id already seen
// earlier on the same page (e.g. a title link and a thumbnail link to the
// same article) are collapsed to the first occurrence.
func (p *Parser) Parse(raw []byte) (articles []Article, skipped int, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, &ParseError{Reason: err.Error()}
	}

	var items *goquery.Selection
	for _, sel := range p.selectors {
		s := doc.Find(sel)
		if s.Length() > 0 {
			p.log.Debug("listing selector matched", logx.String("selector", sel), logx.Int("items", s.Length()))
			items = s
			break
		}
	}
	if items == nil {
		// Fallback: any link that plausibly points at an article.
		p.log.Warn("no listing container matched; trying link extraction")
		items = doc.Find("a[href]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return p.looksLikeArticleLink(s)
		})
		if items.Length() == 0 {
			return nil, 0, &ParseError{Reason: "no article container or article-like links found"}
		}
	}

	seen := make(map[string]struct{}, items.Length())
	items.Each(func(_ int, item *goquery.Selection) {
		a, ok := p.extract(item)
		if !ok {
			skipped++
			return
		}
		if _, dup := seen[a.ID]; dup {
			return
		}
		seen[a.ID] = struct{}{}
		articles = append(articles, a)
	})

	if skipped > 0 {
		p.log.Debug("entries skipped during parse", logx.Int("skipped", skipped))
	}
	return articles, skipped, nil
}

func (p *Parser) looksLikeArticleLink(s *goquery.Selection) bool {
	href, _ := s.Attr("href")
	href = strings.TrimSpace(href)
	if href == "" || href == "#" || strings.HasPrefix(href, "#") {
		return false
	}
	low := strings.ToLower(href)
	for _, pat := range skipPatterns {
		if strings.Contains(low, pat) {
			return false
		}
	}
	if len(strings.TrimSpace(s.Text())) < 10 {
		return false
	}
	// Absolute links must stay on the source host.
	if u, err := url.Parse(href); err == nil && u.IsAbs() && !strings.HasSuffix(u.Hostname(), p.base.Hostname()) {
		return false
	}
	return true
}

// extract pulls one article out of a container (or bare link) selection.
func (p *Parser) extract(item *goquery.Selection) (Article, bool) {
	link := item
	if !item.Is("a") {
		link = item.Find("a[href]").First()
		if link.Length() == 0 {
			return Article{}, false
		}
	}

	href, _ := link.Attr("href")
	href = strings.TrimSpace(href)
	if href == "" || href == "#" {
		return Article{}, false
	}
	abs, ok := p.resolve(href)
	if !ok {
		return Article{}, false
	}

	title := strings.TrimSpace(link.Text())
	if title == "" {
		title, _ = link.Attr("title")
		title = strings.TrimSpace(title)
	}
	if len(title) < minTitleLen {
		return Article{}, false
	}

	a := Article{
		URL:     abs,
		Title:   title,
		Date:    findByClassHint(item, "date"),
		Summary: truncateSummary(firstClassHint(item, "summary", "excerpt", "description")),
	}
	a.ID = p.deriveID(item, abs)
	return a, true
}

func (p *Parser) deriveID(item *goquery.Selection, absURL string) string {
	if p.strategy == IDFromPage {
		for _, attr := range []string{"data-id", "data-article-id", "id"} {
			if v, ok := item.Attr(attr); ok {
				if v = strings.TrimSpace(v); v != "" {
					return v
				}
			}
		}
	}
	return HashID(absURL)
}

func (p *Parser) resolve(href string) (string, bool) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := p.base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}

// findByClassHint returns the text of the first descendant whose class
// contains the hint substring.
func findByClassHint(item *goquery.Selection, hint string) string {
	var out string
	item.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, ok := s.Attr("class")
		if !ok || !strings.Contains(strings.ToLower(class), hint) {
			return true
		}
		out = strings.TrimSpace(s.Text())
		return out == ""
	})
	return out
}

func firstClassHint(item *goquery.Selection, hints ...string) string {
	for _, h := range hints {
		if v := findByClassHint(item, h); v != "" {
			return v
		}
	}
	return ""
}

func truncateSummary(s string) string {
	const maxSummary = 200
	// Cut on a rune boundary; listing pages are Cyrillic-heavy.
	runes := []rune(s)
	if len(runes) <= maxSummary {
		return s
	}
	return string(runes[:maxSummary])
}
