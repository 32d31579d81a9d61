package daemon

import (
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		wantKind SpecKind
		wantCron string
		wantDur  time.Duration
		wantSrc  string
		wantErr  bool
	}{
		{name: "cron five fields", raw: "0 8 * * *", wantKind: SpecCron, wantCron: "0 8 * * *", wantSrc: "cron"},
		{name: "cron descriptor", raw: "@hourly", wantKind: SpecCron, wantCron: "@hourly", wantSrc: "cron"},
		{name: "cron every", raw: "@every 6h", wantKind: SpecCron, wantCron: "@every 6h", wantSrc: "cron"},
		{name: "cron prefix", raw: "cron:0 8 * * *", wantKind: SpecCron, wantCron: "0 8 * * *", wantSrc: "cron"},
		{name: "cron prefix empty", raw: "cron:  ", wantErr: true},

		{name: "duration", raw: "6h", wantKind: SpecInterval, wantDur: 6 * time.Hour, wantSrc: "duration"},
		{name: "duration compound", raw: "2h30m", wantKind: SpecInterval, wantDur: 2*time.Hour + 30*time.Minute, wantSrc: "duration"},
		{name: "hhmm", raw: "06:00", wantKind: SpecInterval, wantDur: 6 * time.Hour, wantSrc: "hhmm"},
		{name: "hhmm half", raw: "02:30", wantKind: SpecInterval, wantDur: 2*time.Hour + 30*time.Minute, wantSrc: "hhmm"},
		{name: "hhmm padded", raw: "  06:00  ", wantKind: SpecInterval, wantDur: 6 * time.Hour, wantSrc: "hhmm"},

		{name: "interval prefix duration", raw: "interval:45m", wantKind: SpecInterval, wantDur: 45 * time.Minute, wantSrc: "duration"},
		{name: "interval prefix hhmm", raw: "interval:01:15", wantKind: SpecInterval, wantDur: time.Hour + 15*time.Minute, wantSrc: "hhmm"},
		{name: "every prefix", raw: "every:30m", wantKind: SpecInterval, wantDur: 30 * time.Minute, wantSrc: "duration"},
		{name: "interval prefix empty", raw: "interval:", wantErr: true},

		{name: "empty", raw: "", wantErr: true},
		{name: "whitespace only", raw: "   ", wantErr: true},
		{name: "zero duration", raw: "0s", wantErr: true},
		{name: "negative duration", raw: "-5m", wantErr: true},
		{name: "hhmm zero", raw: "00:00", wantErr: true},
		{name: "hhmm bad minutes", raw: "06:75", wantErr: true},
		{name: "garbage", raw: "soonish", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSchedule(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseSchedule(%q) = %+v, want error", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSchedule(%q): %v", tt.raw, err)
			}
			if got.Kind != tt.wantKind {
				t.Fatalf("kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Cron != tt.wantCron {
				t.Fatalf("cron = %q, want %q", got.Cron, tt.wantCron)
			}
			if got.Every != tt.wantDur {
				t.Fatalf("every = %v, want %v", got.Every, tt.wantDur)
			}
			if got.Source != tt.wantSrc {
				t.Fatalf("source = %q, want %q", got.Source, tt.wantSrc)
			}
		})
	}
}
