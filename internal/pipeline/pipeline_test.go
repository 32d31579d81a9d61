package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"newsbot/internal/feed"
	"newsbot/internal/notify"
	"newsbot/internal/state"
	logx "newsbot/pkg/logx"
)

// ---- fakes ----

type fakeSource struct {
	raw []byte
	err error
}

func (f *fakeSource) Fetch(ctx context.Context) ([]byte, error) { return f.raw, f.err }

type fakeParser struct {
	articles []feed.Article
	skipped  int
	err      error
}

func (f *fakeParser) Parse(raw []byte) ([]feed.Article, int, error) {
	return f.articles, f.skipped, f.err
}

type fakeDeliverer struct {
	failIDs   map[string]bool
	notified  []string
	summaries int
}

func (f *fakeDeliverer) Notify(ctx context.Context, a feed.Article) error {
	if f.failIDs[a.ID] {
		return &notify.DeliveryError{ChatID: 1, Err: errors.New("provider rejected")}
	}
	f.notified = append(f.notified, a.ID)
	return nil
}

func (f *fakeDeliverer) Summary(ctx context.Context, newCount, totalTracked int) error {
	f.summaries++
	return nil
}

// ---- helpers ----

func articles(ids ...string) []feed.Article {
	out := make([]feed.Article, 0, len(ids))
	for _, id := range ids {
		out = append(out, feed.Article{ID: id, Title: "title " + id, URL: "https://example.bg/news/" + id})
	}
	return out
}

type env struct {
	store     state.Store
	statePath string
	deliverer *fakeDeliverer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	statePath := filepath.Join(t.TempDir(), "seen.json")
	store, err := state.Open(state.Config{Path: statePath}, logx.Nop())
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return &env{store: store, statePath: statePath, deliverer: &fakeDeliverer{}}
}

func (e *env) seedState(t *testing.T, ids ...string) {
	t.Helper()
	if err := e.store.Commit(context.Background(), state.NewSeenState(ids...)); err != nil {
		t.Fatalf("seed commit: %v", err)
	}
}

func (e *env) runner(parser Lister, opts Options) *Runner {
	opts.LockPath = e.statePath
	return NewRunner(e.store, &fakeSource{raw: []byte("<html/>")}, parser, e.deliverer, opts, logx.Nop())
}

func (e *env) committed(t *testing.T) *state.SeenState {
	t.Helper()
	seen, err := e.store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return seen
}

// ---- tests ----

func TestRunDeliversNewAndCommits(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seedState(t, "1")

	r := e.runner(&fakeParser{articles: articles("1", "2", "3")}, Options{})
	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if rep.Fetched != 3 || rep.New != 2 || rep.Delivered != 2 || rep.Failed != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if rep.Outcome() != OutcomeSuccess {
		t.Fatalf("outcome = %s, want success", rep.Outcome())
	}
	if got := e.deliverer.notified; len(got) != 2 || got[0] != "2" || got[1] != "3" {
		t.Fatalf("delivery order wrong: %v", got)
	}

	seen := e.committed(t)
	for _, id := range []string{"1", "2", "3"} {
		if !seen.Contains(id) {
			t.Fatalf("committed state missing %q: %v", id, seen.IDs())
		}
	}
}

func TestRunPartialFailureCommitsOnlyDelivered(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seedState(t, "1")
	e.deliverer.failIDs = map[string]bool{"3": true}

	parser := &fakeParser{articles: articles("1", "2", "3")}
	r := e.runner(parser, Options{})
	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Delivered != 1 || rep.Failed != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if rep.Outcome() != OutcomePartial {
		t.Fatalf("outcome = %s, want partial", rep.Outcome())
	}

	seen := e.committed(t)
	if !seen.Contains("2") || seen.Contains("3") {
		t.Fatalf("failed id must stay uncommitted: %v", seen.IDs())
	}

	// Next run with unchanged upstream retries exactly the failed record.
	e.deliverer.failIDs = nil
	e.deliverer.notified = nil
	rep2, err := e.runner(parser, Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if rep2.New != 1 || rep2.Delivered != 1 {
		t.Fatalf("retry report: %+v", rep2)
	}
	if len(e.deliverer.notified) != 1 || e.deliverer.notified[0] != "3" {
		t.Fatalf("retried records: %v, want [3]", e.deliverer.notified)
	}
	if !e.committed(t).Contains("3") {
		t.Fatal("retried id not committed")
	}
}

func TestRunIdempotentWhenNothingNew(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seedState(t, "1", "2")

	parser := &fakeParser{articles: articles("1", "2")}
	for i := 0; i < 2; i++ {
		rep, err := e.runner(parser, Options{}).Run(context.Background())
		if err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
		if rep.New != 0 || rep.Delivered != 0 {
			t.Fatalf("run %d produced deliveries: %+v", i, rep)
		}
	}
	if len(e.deliverer.notified) != 0 {
		t.Fatalf("idempotence violated: %v", e.deliverer.notified)
	}
}

func TestRunFetchFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seedState(t, "1")

	r := NewRunner(e.store,
		&fakeSource{err: &feed.FetchError{URL: "https://example.bg", Status: 502}},
		&fakeParser{}, e.deliverer, Options{LockPath: e.statePath}, logx.Nop())

	_, err := r.Run(context.Background())
	var ferr *feed.FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected *feed.FetchError, got %v", err)
	}
	if len(e.deliverer.notified) != 0 {
		t.Fatal("delivery attempted despite fetch failure")
	}
	if got := e.committed(t); got.Len() != 1 {
		t.Fatalf("state mutated on fetch failure: %v", got.IDs())
	}
}

func TestRunParseFailureAborts(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seedState(t, "1")

	r := e.runner(&fakeParser{err: &feed.ParseError{Reason: "container missing"}}, Options{})
	_, err := r.Run(context.Background())

	var perr *feed.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *feed.ParseError, got %v", err)
	}
	if len(e.deliverer.notified) != 0 {
		t.Fatal("delivery attempted despite parse failure")
	}
}

func TestRunDryRunCommitsNothing(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	r := e.runner(&fakeParser{articles: articles("1", "2")}, Options{DryRun: true})
	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.New != 2 {
		t.Fatalf("dry run must still report detections: %+v", rep)
	}
	if _, err := os.Stat(e.statePath); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("dry run mutated durable state")
	}
}

func TestRunFirstRunSeedsWithoutNotifying(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	r := e.runner(&fakeParser{articles: articles("1", "2", "3")}, Options{})
	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Seeded != 3 || rep.Delivered != 0 {
		t.Fatalf("unexpected seed report: %+v", rep)
	}
	if len(e.deliverer.notified) != 0 {
		t.Fatalf("first run notified: %v", e.deliverer.notified)
	}

	seen := e.committed(t)
	if seen.Len() != 3 {
		t.Fatalf("seeded state has %d ids, want 3", seen.Len())
	}

	// Second run: a newly published article is the only delivery.
	rep2, err := e.runner(&fakeParser{articles: articles("0", "1", "2", "3")}, Options{}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep2.Delivered != 1 || e.deliverer.notified[0] != "0" {
		t.Fatalf("post-seed run: %+v, notified %v", rep2, e.deliverer.notified)
	}
}

func TestRunFirstRunNotifyPolicy(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	r := e.runner(&fakeParser{articles: articles("1", "2")}, Options{FirstRun: "notify"})
	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Delivered != 2 || rep.Seeded != 0 {
		t.Fatalf("notify policy report: %+v", rep)
	}
	if e.committed(t).Len() != 2 {
		t.Fatal("delivered ids not committed under notify policy")
	}
}

func TestRunSummaryEmitted(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seedState(t, "1")

	if _, err := e.runner(&fakeParser{articles: articles("1", "2")}, Options{}).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if e.deliverer.summaries != 1 {
		t.Fatalf("summaries = %d, want 1", e.deliverer.summaries)
	}
}

func TestRunLockContentionAborts(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seedState(t, "1")

	held, err := state.AcquireLock(e.statePath, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer held.Release()

	_, err = e.runner(&fakeParser{articles: articles("1", "2")}, Options{}).Run(context.Background())
	var lerr *state.LockError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected *state.LockError, got %v", err)
	}
	if len(e.deliverer.notified) != 0 {
		t.Fatal("pipeline proceeded while lock was held")
	}
}

func TestRunCorruptStateAborts(t *testing.T) {
	t.Parallel()
	statePath := filepath.Join(t.TempDir(), "seen.json")
	if err := os.WriteFile(statePath, []byte("{{{"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := state.Open(state.Config{Path: statePath}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	d := &fakeDeliverer{}
	r := NewRunner(store, &fakeSource{raw: []byte("x")},
		&fakeParser{articles: articles("1")}, d, Options{LockPath: statePath}, logx.Nop())

	_, err = r.Run(context.Background())
	var cerr *state.CorruptError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *state.CorruptError, got %v", err)
	}
	if len(d.notified) != 0 {
		t.Fatal("delivery attempted on corrupt state")
	}
}
