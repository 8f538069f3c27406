package model

import (
	"testing"
	"time"
)

func TestSettingsPollInterval(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		want     time.Duration
	}{
		{name: "unset uses fallback", settings: Settings{}, want: time.Minute},
		{name: "explicit interval", settings: Settings{PollIntervalSec: 120}, want: 2 * time.Minute},
		{name: "too small is clamped", settings: Settings{PollIntervalSec: 3}, want: 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.settings.PollInterval(time.Minute); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
