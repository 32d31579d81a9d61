// Package daemon runs the check pipeline on an in-process schedule.
//
// Single-shot invocation driven by an external trigger stays the default;
// daemon mode exists for hosts without a cron/systemd-timer setup. Runs are
// executed synchronously from one loop, so two checks can never overlap.
package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"newsbot/internal/config"
	logx "newsbot/pkg/logx"
)

// RunFunc performs one pipeline pass. Errors are logged and the daemon keeps
// going; an unhealthy source alerts via repeated error logs, not via exit.
type RunFunc func(ctx context.Context) error

type Service struct {
	cfg    config.DaemonConfig
	run    RunFunc
	mgr    *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	// runMu serializes pipeline passes across trigger sources.
	runMu sync.Mutex
}

// New wires the daemon. mgr and logSvc may be nil; config hot-reload is then
// disabled.
func New(cfg config.DaemonConfig, run RunFunc, mgr *config.Manager, logSvc *logx.Service, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, run: run, mgr: mgr, logSvc: logSvc, log: log}
}

// Run blocks until ctx is cancelled. An initial pass executes immediately;
// subsequent passes follow the configured schedule.
func (s *Service) Run(ctx context.Context) error {
	spec, err := ParseSchedule(s.cfg.Schedule)
	if err != nil {
		return err
	}

	loc := time.Local
	if tz := s.cfg.Timezone; tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return err
		}
		loc = l
	}

	s.notifySystemd(sd.SdNotifyReady)
	defer s.notifySystemd(sd.SdNotifyStopping)

	if s.cfg.Watchdog {
		s.startWatchdog(ctx)
	}
	s.startConfigReload(ctx)

	// Initial pass: a news checker that waits a full interval before its
	// first check is surprising to operate.
	s.runOnce(ctx)

	switch spec.Kind {
	case SpecCron:
		return s.runCron(ctx, spec.Cron, loc)
	default:
		return s.runInterval(ctx, spec.Every)
	}
}

func (s *Service) runCron(ctx context.Context, expr string, loc *time.Location) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc))
	if _, err := c.AddFunc(expr, func() { s.runOnce(ctx) }); err != nil {
		return err
	}
	c.Start()
	s.log.Info("daemon scheduled", logx.String("cron", expr), logx.String("tz", loc.String()))

	<-ctx.Done()
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn("cron stop grace elapsed; continuing shutdown")
	}
	return nil
}

func (s *Service) runInterval(ctx context.Context, every time.Duration) error {
	s.log.Info("daemon scheduled", logx.Duration("every", every))
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Service) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.runMu.TryLock() {
		// A previous pass is still going (slow fetch); skip, don't queue.
		s.log.Warn("check still in progress; skipping trigger")
		return
	}
	defer s.runMu.Unlock()

	if err := s.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error("check failed", logx.Err(err))
	}
}

// startWatchdog emits WATCHDOG=1 at half the interval systemd advertises.
func (s *Service) startWatchdog(ctx context.Context) {
	interval, err := sd.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		if err != nil {
			s.log.Warn("systemd watchdog probe failed", logx.Err(err))
		}
		return
	}
	go func() {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.notifySystemd(sd.SdNotifyWatchdog)
			}
		}
	}()
	s.log.Debug("systemd watchdog heartbeat started", logx.Duration("interval", interval/2))
}

// startConfigReload watches the config file and re-applies the logging
// section on changes. Source/state/telegram changes require a restart and
// are called out in the log.
func (s *Service) startConfigReload(ctx context.Context) {
	if s.mgr == nil {
		return
	}
	go func() {
		if err := s.mgr.Watch(ctx); err != nil {
			s.log.Warn("config watch unavailable", logx.Err(err))
		}
	}()

	ch := s.mgr.Subscribe(1)
	go func() {
		defer s.mgr.Unsubscribe(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-ch:
				if !ok || cfg == nil {
					return
				}
				if s.logSvc != nil {
					s.logSvc.Apply(logx.Config{
						Level:   cfg.Logging.Level,
						Console: cfg.Logging.Console,
						File: logx.FileConfig{
							Enabled: cfg.Logging.File.Enabled,
							Path:    cfg.Logging.File.Path,
						},
					})
				}
				s.log.Info("config reloaded; source/state/telegram changes take effect after restart")
			}
		}
	}()
}

func (s *Service) notifySystemd(state string) {
	if _, err := sd.SdNotify(false, state); err != nil {
		s.log.Debug("sd_notify failed", logx.Err(err))
	}
}
