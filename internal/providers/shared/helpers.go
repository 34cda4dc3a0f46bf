package shared

import (
	"strconv"
	"strings"
	"time"
)

func NonEmpty(a, b string) string {
	a = strings.TrimSpace(a)
	if a != "" {
		return a
	}
	return strings.TrimSpace(b)
}

// ParseUnixOrNow interprets the second-resolution timestamp strings the
// Graph API attaches to messages and statuses.
func ParseUnixOrNow(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Now().UTC()
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil || secs <= 0 {
		return time.Now().UTC()
	}
	// Messenger reports milliseconds, WhatsApp seconds.
	if secs > 1e12 {
		return time.UnixMilli(secs).UTC()
	}
	return time.Unix(secs, 0).UTC()
}
