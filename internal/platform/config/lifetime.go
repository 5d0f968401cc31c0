package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseLifetime parses a token or code lifetime. Accepted forms:
//
//	7d             whole days
//	15m, 12h, 30s  Go durations (including compound ones like 1h30m)
//	PT15M, P7D     ISO-8601 durations
//
// The result must be positive.
func ParseLifetime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty lifetime")
	}

	d, err := parseLifetime(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("lifetime %q must be positive", s)
	}
	return d, nil
}

func parseLifetime(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseInt(days, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid day lifetime %q: %w", s, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	m := isoDuration.FindStringSubmatch(strings.ToUpper(s))
	if m == nil || s == "P" || strings.HasSuffix(strings.ToUpper(s), "T") {
		return 0, fmt.Errorf("unrecognized lifetime %q", s)
	}

	var total time.Duration
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute}
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid lifetime %q: %w", s, err)
		}
		total += time.Duration(n) * unit
	}
	if m[4] != "" {
		secs, err := strconv.ParseFloat(m[4], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid lifetime %q: %w", s, err)
		}
		total += time.Duration(secs * float64(time.Second))
	}
	return total, nil
}
