package toon

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ResolveLocation interprets a SMARTSUITE_TIMEZONE value: a named zone
// ("America/New_York"), a numeric offset ("+02:00", "-0500", "+7"), or
// one of "utc", "local", "system". Empty means UTC.
func ResolveLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	switch strings.ToLower(tz) {
	case "", "utc":
		return time.UTC, nil
	case "local", "system":
		return time.Local, nil
	}

	if loc, ok := offsetLocation(tz); ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("unrecognized timezone %q: %w", tz, err)
	}
	return loc, nil
}

// offsetLocation parses "+HH", "+HH:MM", "+HHMM" (and the - forms)
// into a fixed zone.
func offsetLocation(tz string) (*time.Location, bool) {
	if len(tz) < 2 || (tz[0] != '+' && tz[0] != '-') {
		return nil, false
	}
	body := strings.ReplaceAll(tz[1:], ":", "")
	var hours, minutes int
	switch len(body) {
	case 1, 2:
		h, err := strconv.Atoi(body)
		if err != nil {
			return nil, false
		}
		hours = h
	case 4:
		h, err := strconv.Atoi(body[:2])
		if err != nil {
			return nil, false
		}
		m, err := strconv.Atoi(body[2:])
		if err != nil {
			return nil, false
		}
		hours, minutes = h, m
	default:
		return nil, false
	}
	if hours > 14 || minutes > 59 {
		return nil, false
	}
	offset := hours*3600 + minutes*60
	if tz[0] == '-' {
		offset = -offset
	}
	return time.FixedZone(tz, offset), true
}
