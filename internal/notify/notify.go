// Package notify formats and delivers one chat message per new article.
package notify

import (
	"context"
	"fmt"
)

// DeliveryError reports a provider rejection (rate limit, bad chat target,
// auth failure). Recovered per record: the pipeline keeps the failing id out
// of the committed state so the next run retries it.
type DeliveryError struct {
	ChatID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to chat %d: %v", e.ChatID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Sender is the messaging provider's send-message operation.
// Production implementation is the Telegram sender; tests substitute fakes.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string, disablePreview bool) error
}

// Config configures the notifier.
type Config struct {
	ChatID int64

	// RatePerSec caps outbound messages per second (provider enforces an
	// upstream cap; deliveries are sequential regardless). Default: 1.
	RatePerSec int

	// DryRun suppresses the transport call; formatting and pacing still run
	// so operators can verify detection without spamming the chat.
	DryRun bool

	// Summary enables one wrap-up message after a run that delivered
	// at least one article.
	Summary bool

	DisablePreview bool
}
