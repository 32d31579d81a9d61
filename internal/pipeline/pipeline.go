// Package pipeline sequences one change-detection run:
// lock → load → fetch → parse → diff → deliver → commit.
package pipeline

import (
	"context"
	"strings"
	"time"

	"newsbot/internal/feed"
	"newsbot/internal/state"
	logx "newsbot/pkg/logx"
)

// Source retrieves the current listing page.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Lister converts a raw listing page into ordered article records.
type Lister interface {
	Parse(raw []byte) (articles []feed.Article, skipped int, err error)
}

// Deliverer sends one message per new record plus an optional run summary.
type Deliverer interface {
	Notify(ctx context.Context, a feed.Article) error
	Summary(ctx context.Context, newCount, totalTracked int) error
}

// Options control run policy.
type Options struct {
	// DryRun suppresses delivery AND the state commit: a dry run must not
	// mark anything as sent.
	DryRun bool

	// FirstRun decides behavior when no prior state exists:
	// "seed" (default) records everything without notifying, "notify"
	// treats every listed article as new.
	FirstRun string

	// LockPath is the state path the advisory run lock is derived from.
	LockPath string
}

// Runner executes the pipeline. Single-threaded, run-to-completion; the only
// suspension points are the fetch and the sequential delivery calls.
type Runner struct {
	store    state.Store
	source   Source
	parser   Lister
	notifier Deliverer
	opts     Options
	log      logx.Logger
}

func NewRunner(store state.Store, source Source, parser Lister, notifier Deliverer, opts Options, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{
		store:    store,
		source:   source,
		parser:   parser,
		notifier: notifier,
		opts:     opts,
		log:      log,
	}
}

// Run performs one best-effort pass.
//
// Failure policy (the central recovery design):
//   - fetch/parse/load/lock failures abort before any delivery attempt and
//     before any state mutation — the run is a no-op for state;
//   - a failed delivery only excludes that record from the commit, so the
//     next run retries it;
//   - commit happens after delivery, never before, trading a possible
//     duplicate (crash between send and commit) for never losing a
//     notification.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	rep := Report{DryRun: r.opts.DryRun}

	lock, err := state.AcquireLock(r.opts.LockPath, r.log)
	if err != nil {
		return rep, err
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			r.log.Warn("state lock release failed", logx.Err(rerr))
		}
	}()

	seen, err := r.store.Load(ctx)
	if err != nil {
		return rep, err
	}
	firstRun := seen.Len() == 0

	raw, err := r.source.Fetch(ctx)
	if err != nil {
		return rep, err
	}

	articles, skipped, err := r.parser.Parse(raw)
	if err != nil {
		return rep, err
	}
	rep.Fetched = len(articles)
	rep.Skipped = skipped

	// Dry runs skip the seed shortcut: the point of a dry run is to show
	// what detection would do, so every unseen record is reported as a
	// would-notify entry even on a first run.
	if firstRun && !r.opts.DryRun && !strings.EqualFold(strings.TrimSpace(r.opts.FirstRun), "notify") {
		return r.seed(ctx, seen, articles, rep, start)
	}

	newRecs := Diff(articles, seen)
	rep.New = len(newRecs)

	var delivered []feed.Article
	for _, a := range newRecs {
		if err := r.notifier.Notify(ctx, a); err != nil {
			rep.Failed++
			r.log.Error("delivery failed; will retry next run",
				logx.String("id", a.ID),
				logx.String("title", a.Title),
				logx.Err(err),
			)
			continue
		}
		rep.Delivered++
		delivered = append(delivered, a)
	}

	if !r.opts.DryRun && len(delivered) > 0 {
		for _, a := range delivered {
			seen.Add(a.ID)
		}
		if err := r.store.Commit(ctx, seen); err != nil {
			// Messages went out but the ids were not recorded: the next run
			// will re-deliver them. Loud by design — duplicates over losses.
			r.log.Error("state commit failed after delivery; duplicates likely next run", logx.Err(err))
			return rep, err
		}
	}

	if err := r.notifier.Summary(ctx, rep.Delivered, seen.Len()); err != nil {
		r.log.Warn("summary delivery failed", logx.Err(err))
	}

	r.logRun(rep, seen.Len(), start)
	return rep, nil
}

// seed handles the first run under the "seed" policy: record every currently
// listed article without notifying, so a fresh deployment does not flood the
// chat with historical items.
func (r *Runner) seed(ctx context.Context, seen *state.SeenState, articles []feed.Article, rep Report, start time.Time) (Report, error) {
	for _, a := range articles {
		seen.Add(a.ID)
	}
	rep.Seeded = seen.Len()

	if rep.Seeded > 0 {
		if err := r.store.Commit(ctx, seen); err != nil {
			return rep, err
		}
	}
	r.logRun(rep, seen.Len(), start)
	return rep, nil
}

func (r *Runner) logRun(rep Report, tracked int, start time.Time) {
	r.log.Info("run complete",
		logx.String("outcome", string(rep.Outcome())),
		logx.Int("fetched", rep.Fetched),
		logx.Int("skipped", rep.Skipped),
		logx.Int("new", rep.New),
		logx.Int("delivered", rep.Delivered),
		logx.Int("failed", rep.Failed),
		logx.Int("seeded", rep.Seeded),
		logx.Int("tracked", tracked),
		logx.Bool("dry_run", rep.DryRun),
		logx.Duration("took", time.Since(start)),
	)
}
