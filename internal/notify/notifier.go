package notify

import (
	"context"

	"golang.org/x/time/rate"

	"newsbot/internal/feed"
	logx "newsbot/pkg/logx"
)

// Notifier delivers one message per new article, sequentially, paced under
// the provider's messages-per-second cap.
type Notifier struct {
	cfg     Config
	sender  Sender
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, sender Sender, log logx.Logger) *Notifier {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{
		cfg:    cfg,
		sender: sender,
		// Burst 1 keeps deliveries strictly sequential in time.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		log:     log,
	}
}

// Notify formats and delivers the message for one article. In dry-run mode
// it logs what would be sent and reports success without touching the
// transport.
func (n *Notifier) Notify(ctx context.Context, a feed.Article) error {
	text := FormatArticle(a)

	if n.cfg.DryRun {
		n.log.Info("[dry run] would notify",
			logx.String("id", a.ID),
			logx.String("title", a.Title),
			logx.String("url", a.URL),
		)
		return nil
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return &DeliveryError{ChatID: n.cfg.ChatID, Err: err}
	}
	if err := n.sender.Send(ctx, n.cfg.ChatID, text, n.cfg.DisablePreview); err != nil {
		return &DeliveryError{ChatID: n.cfg.ChatID, Err: err}
	}
	n.log.Info("notified", logx.String("id", a.ID), logx.String("title", a.Title))
	return nil
}

// Summary sends the end-of-run wrap-up. Failures are reported but the
// pipeline treats them as non-fatal and they never affect state.
func (n *Notifier) Summary(ctx context.Context, newCount, totalTracked int) error {
	if !n.cfg.Summary || newCount == 0 {
		return nil
	}
	if n.cfg.DryRun {
		n.log.Info("[dry run] would send summary",
			logx.Int("new", newCount), logx.Int("total", totalTracked))
		return nil
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return &DeliveryError{ChatID: n.cfg.ChatID, Err: err}
	}
	if err := n.sender.Send(ctx, n.cfg.ChatID, FormatSummary(newCount, totalTracked), true); err != nil {
		return &DeliveryError{ChatID: n.cfg.ChatID, Err: err}
	}
	return nil
}
