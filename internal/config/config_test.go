package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
app:
  name: courtbook
  port: 8080
database:
  driver: sqlite
  filename: data/courtbook.db
booking:
  slot_minutes: 30
  default_policy:
    min_notice_hours: 24
    fee_percent: 50
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Booking.SlotMinutes != 30 {
		t.Fatalf("slot minutes = %d, want 30", cfg.Booking.SlotMinutes)
	}
	if cfg.Booking.MaxOccurrences != 365 {
		t.Fatalf("max occurrences = %d, want default 365", cfg.Booking.MaxOccurrences)
	}
	if cfg.Booking.DefaultPolicy.MinNoticeHours != 24 {
		t.Fatalf("min notice = %d, want 24", cfg.Booking.DefaultPolicy.MinNoticeHours)
	}
	if cfg.Booking.DefaultPolicy.FeePercent == nil || *cfg.Booking.DefaultPolicy.FeePercent != 50 {
		t.Fatalf("fee percent not parsed: %+v", cfg.Booking.DefaultPolicy)
	}
	if cfg.Booking.LifecycleCron == "" {
		t.Fatalf("expected default lifecycle cron")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		replace [2]string
		wantErr string
	}{
		{name: "missing_name", replace: [2]string{"name: courtbook", "name: \"\""}, wantErr: "app name"},
		{name: "bad_driver", replace: [2]string{"driver: sqlite", "driver: postgres"}, wantErr: "unsupported database driver"},
		{name: "zero_slot", replace: [2]string{"slot_minutes: 30", "slot_minutes: -1"}, wantErr: "slot_minutes"},
		{name: "bad_cron", replace: [2]string{"slot_minutes: 30", "slot_minutes: 30\n  lifecycle_cron: \"every minute\""}, wantErr: "lifecycle_cron"},
		{name: "bad_percent", replace: [2]string{"fee_percent: 50", "fee_percent: 150"}, wantErr: "fee_percent"},
		{name: "negative_rate_limit", replace: [2]string{"booking:", "rate_limit:\n  max_per_user: -1\nbooking:"}, wantErr: "rate limits"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data := strings.Replace(validYAML, test.replace[0], test.replace[1], 1)
			_, err := Parse([]byte(data))
			if err == nil {
				t.Fatalf("expected error containing %q", test.wantErr)
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Fatalf("error %q does not contain %q", err, test.wantErr)
			}
		})
	}
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load("../../config/app.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Name != "courtbook" || cfg.App.Port != 8080 {
		t.Fatalf("unexpected app section %+v", cfg.App)
	}
	if cfg.RateLimit.Window != time.Minute || cfg.RateLimit.MaxPerUser != 30 {
		t.Fatalf("unexpected rate limit %+v", cfg.RateLimit)
	}
	if cfg.Cache.TTL != 10*time.Minute || !cfg.Features.EnableScheduler {
		t.Fatalf("unexpected cache/features %+v %+v", cfg.Cache, cfg.Features)
	}
}
