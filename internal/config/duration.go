package config

import (
	"fmt"
	"strings"
	"time"
)

// Durations in the config file are strings ("5m", "1h30m") so operators can
// edit them without counting nanoseconds. These helpers parse them with the
// config path included in errors, so validation failures name the field.

// ParseDurationField parses a duration string from the config. An empty or
// whitespace-only value parses to zero, which callers treat as "unset".
func ParseDurationField(path, raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(trimmed)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback: unset and
// zero values yield def instead.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
