package notify

import (
	"strconv"
	"strings"

	"newsbot/internal/feed"
)

// FormatArticle renders the outgoing message for one article as plain text.
// Scraped titles and summaries go out verbatim; the message must deliver no
// matter what characters the source page contains.
func FormatArticle(a feed.Article) string {
	var b strings.Builder
	b.WriteString("📰 Ново съобщение\n\n")
	b.WriteString(a.Title)
	if a.Date != "" {
		b.WriteString("\n📅 ")
		b.WriteString(a.Date)
	}
	if a.Summary != "" {
		b.WriteString("\n\n")
		b.WriteString(a.Summary)
		b.WriteString("…")
	}
	b.WriteString("\n\n")
	b.WriteString(a.URL)
	return b.String()
}

// FormatSummary renders the end-of-run wrap-up message.
func FormatSummary(newCount, totalTracked int) string {
	var b strings.Builder
	b.WriteString("✅ Проверих за новини от детските градини.\n\n")
	b.WriteString("📊 Нови съобщения: ")
	b.WriteString(strconv.Itoa(newCount))
	b.WriteString("\n📁 Общо следени: ")
	b.WriteString(strconv.Itoa(totalTracked))
	return b.String()
}
