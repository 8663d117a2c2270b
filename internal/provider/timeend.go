package provider

import (
	"errors"
	"strings"
	"time"
)

var timeEndLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimeEnd parses the ISO-8601 farm expiry. Values without an offset are UTC.
func ParseTimeEnd(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("timeEnd is empty")
	}
	var lastErr error
	for _, layout := range timeEndLayouts {
		t, err := time.ParseInLocation(layout, v, time.UTC)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
