package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLifetime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"15m", 15 * time.Minute},
		{"7d", 7 * 24 * time.Hour},
		{"12h", 12 * time.Hour},
		{"30s", 30 * time.Second},
		{"1h30m", 90 * time.Minute},
		{"PT15M", 15 * time.Minute},
		{"P7D", 7 * 24 * time.Hour},
		{"PT1H30M", 90 * time.Minute},
		{"P1DT2H", 26 * time.Hour},
		{"PT0.5S", 500 * time.Millisecond},
		{" 120s ", 120 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLifetime(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLifetimeRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "xd", "P", "PT", "0s", "-5m", "P0D"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseLifetime(in)
			assert.Error(t, err)
		})
	}
}
