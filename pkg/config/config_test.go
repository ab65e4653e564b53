package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTiming() Timing {
	return Timing{
		OpenF1URL:            "https://api.openf1.org/v1",
		FetchTimeout:         8 * time.Second,
		FetchRetries:         3,
		MaxConcurrentFetches: 3,
		SessionCacheTTL:      30 * time.Second,
		HistoryCacheTTL:      30 * time.Second,
		HistoryCacheSize:     8,
		LivePollInterval:     7 * time.Second,
		ReplayPollInterval:   15 * time.Second,
		ReplayLapInterval:    1500 * time.Millisecond,
		PositionPad:          120 * time.Second,
		RaceControlLimit:     8,
	}
}

func TestTimingValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Timing)
		wantErr string
	}{
		{name: "defaults", modify: func(*Timing) {}},
		{name: "no cache", modify: func(c *Timing) { c.SessionCacheTTL = 0 }},
		{
			name:    "missing url",
			modify:  func(c *Timing) { c.OpenF1URL = "" },
			wantErr: "OpenF1URL",
		},
		{
			name:    "not an url",
			modify:  func(c *Timing) { c.OpenF1URL = "api" },
			wantErr: "OpenF1URL",
		},
		{
			name:    "zero timeout",
			modify:  func(c *Timing) { c.FetchTimeout = 0 },
			wantErr: "FetchTimeout",
		},
		{
			name:    "too many fetches",
			modify:  func(c *Timing) { c.MaxConcurrentFetches = 7 },
			wantErr: "MaxConcurrentFetches",
		},
		{
			name:    "hammering poll",
			modify:  func(c *Timing) { c.LivePollInterval = 100 * time.Millisecond },
			wantErr: "LivePollInterval",
		},
		{
			name:    "negative limit",
			modify:  func(c *Timing) { c.RaceControlLimit = -1 },
			wantErr: "RaceControlLimit",
		},
		{
			name:    "no history cache",
			modify:  func(c *Timing) { c.HistoryCacheSize = 0 },
			wantErr: "HistoryCacheSize",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validTiming()
			tt.modify(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseWaitForServices(t *testing.T) {
	defer func(old string) { WaitForServices = old }(WaitForServices)
	WaitForServices = "5s"
	assert.Equal(t, 5*time.Second, ParseWaitForServices())
	WaitForServices = "soon"
	assert.Equal(t, 60*time.Second, ParseWaitForServices())
}
