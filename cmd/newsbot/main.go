package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"newsbot/internal/config"
	"newsbot/internal/daemon"
	"newsbot/internal/feed"
	"newsbot/internal/notify"
	"newsbot/internal/pipeline"
	"newsbot/internal/state"
	logx "newsbot/pkg/logx"
)

func main() {
	var (
		cfgPath string
		once    bool
		dryRun  bool
	)
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config (json or yaml)")
	flag.BoolVar(&once, "once", false, "run a single check even when daemon mode is configured")
	flag.BoolVar(&dryRun, "dry-run", false, "detect and log, but deliver nothing and commit no state")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath, once, dryRun); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string, once, dryRun bool) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Parse()
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if dryRun {
		cfg.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config %s: %w", cfgPath, err)
	}
	mgr.Commit(cfg)

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	defer logSvc.Close()
	mgr.SetLogger(log)

	runner, store, err := buildRunner(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Daemon.Enabled && !once {
		d := daemon.New(cfg.Daemon,
			func(ctx context.Context) error {
				_, err := runner.Run(ctx)
				return err
			},
			mgr, logSvc, log.With(logx.String("comp", "daemon")),
		)
		return d.Run(ctx)
	}

	rep, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	if rep.Outcome() == pipeline.OutcomePartial {
		// Failed deliveries stay out of the committed state and retry on the
		// next scheduled run; not a fatal condition.
		log.Warn("some deliveries failed; they will be retried next run",
			logx.Int("failed", rep.Failed))
	}
	return nil
}

func buildRunner(cfg *config.Config, log logx.Logger) (*pipeline.Runner, state.Store, error) {
	busy, err := config.ParseDurationField("state.busy_timeout", cfg.State.BusyTimeout)
	if err != nil {
		return nil, nil, err
	}
	store, err := state.Open(state.Config{
		Driver:      cfg.State.Driver,
		Path:        cfg.State.Path,
		OnCorrupt:   cfg.State.OnCorrupt,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "state")))
	if err != nil {
		return nil, nil, err
	}

	timeout, err := config.ParseDurationOrDefault("source.timeout", cfg.Source.Timeout, 30*time.Second)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	fetcher := feed.NewFetcher(feed.FetcherConfig{
		URL:       cfg.Source.URL,
		Timeout:   timeout,
		UserAgent: cfg.Source.UserAgent,
	}, log.With(logx.String("comp", "fetch")))

	parser, err := feed.NewParser(feed.ParserConfig{
		BaseURL:    cfg.Source.URL,
		Selectors:  cfg.Source.Selectors,
		IDStrategy: feed.ParseIDStrategy(cfg.Source.IDStrategy),
	}, log.With(logx.String("comp", "parse")))
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	// In dry-run mode no transport call ever happens, so the Telegram client
	// (and its token) is not required.
	var sender notify.Sender
	if !cfg.DryRun {
		sender, err = notify.NewTelegramSender(cfg.Telegram.Token)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
	}
	notifier := notify.New(notify.Config{
		ChatID:         cfg.Telegram.ChatID,
		RatePerSec:     cfg.Telegram.RatePerSec,
		DryRun:         cfg.DryRun,
		Summary:        cfg.Telegram.Summary,
		DisablePreview: cfg.Telegram.DisablePreview,
	}, sender, log.With(logx.String("comp", "notify")))

	runner := pipeline.NewRunner(store, fetcher, parser, notifier, pipeline.Options{
		DryRun:   cfg.DryRun,
		FirstRun: cfg.Source.FirstRun,
		LockPath: cfg.State.Path,
	}, log.With(logx.String("comp", "pipeline")))

	return runner, store, nil
}
