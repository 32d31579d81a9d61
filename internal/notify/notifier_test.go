package notify

import (
	"context"
	"errors"
	"testing"

	"newsbot/internal/feed"
	logx "newsbot/pkg/logx"
)

type recordingSender struct {
	sent []string
	err  error
}

func (r *recordingSender) Send(ctx context.Context, chatID int64, text string, disablePreview bool) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, text)
	return nil
}

var testArticle = feed.Article{
	ID:    "id-1",
	URL:   "https://example.bg/news/1",
	Title: "Ново съобщение за прием",
}

func TestNotifyDelivers(t *testing.T) {
	t.Parallel()
	s := &recordingSender{}
	n := New(Config{ChatID: 42, RatePerSec: 100}, s, logx.Nop())

	if err := n.Notify(context.Background(), testArticle); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(s.sent))
	}
}

func TestNotifyWrapsProviderError(t *testing.T) {
	t.Parallel()
	cause := errors.New("429 too many requests")
	n := New(Config{ChatID: 42, RatePerSec: 100}, &recordingSender{err: cause}, logx.Nop())

	err := n.Notify(context.Background(), testArticle)
	var derr *DeliveryError
	if !errors.As(err, &derr) {
		t.Fatalf("expected *DeliveryError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause not wrapped")
	}
	if derr.ChatID != 42 {
		t.Fatalf("ChatID = %d, want 42", derr.ChatID)
	}
}

func TestNotifyDryRunSkipsTransport(t *testing.T) {
	t.Parallel()
	s := &recordingSender{}
	n := New(Config{ChatID: 42, RatePerSec: 100, DryRun: true}, s, logx.Nop())

	if err := n.Notify(context.Background(), testArticle); err != nil {
		t.Fatalf("dry-run Notify must report success, got %v", err)
	}
	if len(s.sent) != 0 {
		t.Fatalf("dry run performed %d transport calls", len(s.sent))
	}
}

func TestNotifyDryRunWorksWithoutSender(t *testing.T) {
	t.Parallel()
	// Dry run is how operators verify detection before credentials exist.
	n := New(Config{ChatID: 0, RatePerSec: 100, DryRun: true}, nil, logx.Nop())
	if err := n.Notify(context.Background(), testArticle); err != nil {
		t.Fatalf("Notify with nil sender in dry run: %v", err)
	}
}

func TestSummaryGating(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := &recordingSender{}
	n := New(Config{ChatID: 42, RatePerSec: 100, Summary: true}, s, logx.Nop())

	// Nothing delivered: no summary.
	if err := n.Summary(ctx, 0, 10); err != nil {
		t.Fatal(err)
	}
	if len(s.sent) != 0 {
		t.Fatal("summary sent despite zero new articles")
	}

	if err := n.Summary(ctx, 3, 13); err != nil {
		t.Fatal(err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent %d summaries, want 1", len(s.sent))
	}

	// Summary disabled: never sent.
	s2 := &recordingSender{}
	n2 := New(Config{ChatID: 42, RatePerSec: 100}, s2, logx.Nop())
	if err := n2.Summary(ctx, 3, 13); err != nil {
		t.Fatal(err)
	}
	if len(s2.sent) != 0 {
		t.Fatal("summary sent despite being disabled")
	}
}
