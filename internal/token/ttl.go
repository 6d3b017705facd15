package token

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTTL resolves configuration lifetimes such as "15m", "1h30m", "7d", "2w" or a
// bare number of seconds ("3600"). time.ParseDuration has no day or week unit.
func ParseTTL(value string) (time.Duration, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return 0, fmt.Errorf("ttl is empty")
	}

	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("ttl %q must be positive", value)
		}
		return time.Duration(n) * time.Second, nil
	}

	var unit time.Duration
	switch v[len(v)-1] {
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	}
	if unit > 0 {
		n, err := strconv.Atoi(v[:len(v)-1])
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid ttl %q", value)
		}
		return time.Duration(n) * unit, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid ttl %q: %w", value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("ttl %q must be positive", value)
	}
	return d, nil
}
