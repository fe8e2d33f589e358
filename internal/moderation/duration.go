package moderation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxMuteDuration is the longest mute Telegram honours. Longer
// restrictions are treated as permanent.
const MaxMuteDuration = 366 * 24 * time.Hour

// ParseMuteDuration parses a mute length such as "2h", "30m", "45s" or
// "1d". A bare number is read as minutes. Empty, malformed, non-positive
// and over-long input (beyond MaxMuteDuration) yields fallback.
func ParseMuteDuration(arg string, fallback time.Duration) time.Duration {
	arg = strings.ToLower(strings.TrimSpace(arg))
	if arg == "" {
		return fallback
	}

	unit := time.Minute
	digits := arg
	switch arg[len(arg)-1] {
	case 's':
		unit, digits = time.Second, arg[:len(arg)-1]
	case 'm':
		unit, digits = time.Minute, arg[:len(arg)-1]
	case 'h':
		unit, digits = time.Hour, arg[:len(arg)-1]
	case 'd':
		unit, digits = 24*time.Hour, arg[:len(arg)-1]
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n <= 0 || n > int64(MaxMuteDuration/unit) {
		return fallback
	}
	return time.Duration(n) * unit
}

// HumanDuration renders d the way replies show it:
// "45 seconds", "5 minutes" or "2 hours, 5 minutes".
func HumanDuration(d time.Duration) string {
	seconds := int(d / time.Second)
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d seconds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%d minutes", seconds/60)
	default:
		return fmt.Sprintf("%d hours, %d minutes", seconds/3600, (seconds%3600)/60)
	}
}
