package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Source describes the news listing page being watched.
	Source SourceConfig `json:"source"`

	// Telegram configures the outbound chat target.
	Telegram TelegramConfig `json:"telegram"`

	State   StateConfig   `json:"state"`
	Logging LoggingConfig `json:"logging"`

	// Daemon enables the optional long-running mode. When disabled (default),
	// the process performs a single check and exits; scheduling is left to an
	// external trigger (cron, systemd timer).
	Daemon DaemonConfig `json:"daemon,omitempty"`

	// DryRun performs full detection but suppresses outbound delivery and
	// never commits seen-state. Use it to verify selectors on a new source.
	DryRun bool `json:"dry_run,omitempty"`
}

// SourceConfig controls fetching and parsing of the listing page.
//
// All durations are Go duration strings (e.g. "10s", "1m").
type SourceConfig struct {
	URL string `json:"url"`

	// Timeout bounds the whole fetch. Default: "30s".
	Timeout   string `json:"timeout,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	// Selectors overrides the built-in CSS selector cascade used to locate
	// article entries. Leave empty to use the defaults.
	Selectors []string `json:"selectors,omitempty"`

	// IDStrategy selects how stable article ids are derived:
	//   - "url"  (default): hash of the canonical absolute article URL
	//   - "page": page-assigned id attribute, falling back to the URL hash
	IDStrategy string `json:"id_strategy,omitempty"`

	// FirstRun decides what happens when no prior state exists:
	//   - "seed" (default): record everything currently listed, notify nothing
	//   - "notify": treat every listed article as new
	FirstRun string `json:"first_run,omitempty"`
}

type TelegramConfig struct {
	// Token may be left empty in the file and supplied via NEWSBOT_TELEGRAM_TOKEN.
	Token string `json:"token,omitempty"`
	// ChatID may be supplied via NEWSBOT_CHAT_ID.
	ChatID int64 `json:"chat_id,omitempty"`

	// RatePerSec caps outbound messages per second. Default: 1.
	RatePerSec int `json:"rate_per_sec,omitempty"`

	// Summary sends one wrap-up message after a run that delivered articles.
	Summary bool `json:"summary,omitempty"`

	DisablePreview bool `json:"disable_preview,omitempty"`
}

// StateConfig controls the seen-state store.
//
// Example:
//
//	"state": { "driver": "json", "path": "./data/seen.json" }
type StateConfig struct {
	// Driver is "json" (default) or "sqlite".
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path"`

	// OnCorrupt decides what to do when existing state cannot be parsed:
	//   - "abort" (default): fail the run; treating corrupt state as empty
	//     would re-notify the entire backlog
	//   - "reset": log a warning and start from an empty set
	OnCorrupt string `json:"on_corrupt,omitempty"`

	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DaemonConfig controls in-process scheduling.
type DaemonConfig struct {
	Enabled bool `json:"enabled"`

	// Schedule accepts a cron expression ("0 8 * * *", "@hourly"), a Go
	// duration ("6h"), or HH:MM as an interval ("06:00" = every 6 hours).
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`

	// Watchdog enables systemd WATCHDOG=1 heartbeats when running under a
	// unit with WatchdogSec set.
	Watchdog bool `json:"watchdog,omitempty"`
}

const (
	EnvTelegramToken = "NEWSBOT_TELEGRAM_TOKEN"
	EnvChatID        = "NEWSBOT_CHAT_ID"
)

// ApplyEnv overlays secrets from the environment so tokens can stay out of
// the config file. Env values win over file values.
func (c *Config) ApplyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvTelegramToken)); v != "" {
		c.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvChatID)); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid chat id %q: %w", EnvChatID, v, err)
		}
		c.Telegram.ChatID = id
	}
	return nil
}

// Validate checks the config for a runnable setup and fills defaults.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Source.URL) == "" {
		return errors.New("source.url is required")
	}
	if _, err := ParseDurationOrDefault("source.timeout", c.Source.Timeout, 0); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Source.IDStrategy)) {
	case "", "url", "page":
	default:
		return fmt.Errorf("source.id_strategy: unknown strategy %q (use \"url\" or \"page\")", c.Source.IDStrategy)
	}
	switch strings.ToLower(strings.TrimSpace(c.Source.FirstRun)) {
	case "", "seed", "notify":
	default:
		return fmt.Errorf("source.first_run: unknown policy %q (use \"seed\" or \"notify\")", c.Source.FirstRun)
	}

	if strings.TrimSpace(c.State.Path) == "" {
		return errors.New("state.path is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.State.Driver)) {
	case "", "json", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("state.driver: unknown driver %q (use \"json\" or \"sqlite\")", c.State.Driver)
	}
	switch strings.ToLower(strings.TrimSpace(c.State.OnCorrupt)) {
	case "", "abort", "reset":
	default:
		return fmt.Errorf("state.on_corrupt: unknown policy %q (use \"abort\" or \"reset\")", c.State.OnCorrupt)
	}
	if _, err := ParseDurationField("state.busy_timeout", c.State.BusyTimeout); err != nil {
		return err
	}

	// Delivery credentials are only needed when we will actually send.
	if !c.DryRun {
		if strings.TrimSpace(c.Telegram.Token) == "" {
			return fmt.Errorf("telegram.token is required (or set %s) unless dry_run is enabled", EnvTelegramToken)
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required (or set %s) unless dry_run is enabled", EnvChatID)
		}
	}
	if c.Telegram.RatePerSec < 0 {
		return errors.New("telegram.rate_per_sec must be >= 0")
	}

	if c.Daemon.Enabled && strings.TrimSpace(c.Daemon.Schedule) == "" {
		return errors.New("daemon.schedule is required when daemon.enabled is true")
	}
	return nil
}

// ParseDurationField parses an optional duration field like source.timeout or
// state.busy_timeout. Empty means unset and yields zero.
func ParseDurationField(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	return d, nil
}

// ParseDurationOrDefault substitutes def when the field is unset.
func ParseDurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(field, raw)
	if err == nil && d == 0 {
		return def, nil
	}
	return d, err
}
