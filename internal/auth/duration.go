package auth

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var shortDuration = regexp.MustCompile(`^(\d+)([dwh])$`)

// ParseExpiration turns a --expires value into an absolute time relative to
// now. Supported formats:
//   - "never" or "" - no expiration, returns nil
//   - "30d", "2w", "24h" - days, weeks or hours from now
//   - any Go duration like "90m" or "2h30m"
//   - "2006-01-02" - midnight UTC of that day
//
// Examples:
//
//	ParseExpiration("never", now)      -> nil
//	ParseExpiration("30d", now)        -> now + 720h
//	ParseExpiration("2026-12-25", now) -> Dec 25, 2026 at 00:00:00 UTC
func ParseExpiration(expiresIn string, now time.Time) (*time.Time, error) {
	if expiresIn == "" || expiresIn == "never" {
		return nil, nil
	}

	if dur, err := time.ParseDuration(expiresIn); err == nil {
		if dur <= 0 {
			return nil, fmt.Errorf("expiration must be in the future: %s", expiresIn)
		}
		t := now.Add(dur)
		return &t, nil
	}

	if t, err := time.Parse("2006-01-02", expiresIn); err == nil {
		if !t.After(now) {
			return nil, fmt.Errorf("expiration date must be in the future: %s", expiresIn)
		}
		return &t, nil
	}

	matches := shortDuration.FindStringSubmatch(expiresIn)
	if len(matches) != 3 {
		return nil, fmt.Errorf("invalid expiration format: %s (use 'never', '30d', '2w', '24h', '2026-12-25', or any Go duration like '30m')", expiresIn)
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil || num == 0 {
		return nil, fmt.Errorf("invalid number in expiration: %s", expiresIn)
	}

	var dur time.Duration
	switch matches[2] {
	case "d":
		dur = time.Duration(num) * 24 * time.Hour
	case "w":
		dur = time.Duration(num) * 7 * 24 * time.Hour
	case "h":
		dur = time.Duration(num) * time.Hour
	}

	t := now.Add(dur)
	return &t, nil
}
