package lexer

import (
	"strings"
	"time"
)

// obsoleteZones maps the RFC 822/2822 obsolete named zones to their UTC
// offsets in minutes. Single-letter military zones other than "Z" are
// explicitly marked "unknown" by RFC 2822 §4.3 and are treated as +0000,
// matching what most deployed IMAP servers do when quoting Date headers
// verbatim.
var obsoleteZones = map[string]int{
	"UT":  0,
	"GMT": 0,
	"EST": -5 * 60,
	"EDT": -4 * 60,
	"CST": -6 * 60,
	"CDT": -5 * 60,
	"MST": -7 * 60,
	"MDT": -6 * 60,
	"PST": -8 * 60,
	"PDT": -7 * 60,
	"Z":   0,
}

var rfc2822Layouts = []string{
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04 -0700",
	"2 Jan 2006 15:04 -0700",
}

// RFC2822DateTime parses a header-style date-time string (as carried in
// ENVELOPE's date field), tolerating the obsolete named zones and the
// single-letter military zones that RFC 2822 §4.3 still requires parsers to
// accept even though generators must not emit them.
func RFC2822DateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if zone, rest, ok := splitTrailingZoneName(s); ok {
		offset, known := obsoleteZones[zone]
		if !known && len(zone) == 1 {
			offset = 0 // unknown military zone per RFC 2822 §4.3
		}
		s = rest + formatOffset(offset)
	}
	var lastErr error
	for _, layout := range rfc2822Layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

func splitTrailingZoneName(s string) (zone, rest string, ok bool) {
	idx := strings.LastIndexByte(s, ' ')
	if idx < 0 {
		return "", s, false
	}
	candidate := s[idx+1:]
	if candidate == "" {
		return "", s, false
	}
	upper := strings.ToUpper(candidate)
	if _, known := obsoleteZones[upper]; known {
		return upper, s[:idx], true
	}
	if len(upper) == 1 && upper[0] >= 'A' && upper[0] <= 'Z' && upper != "Z" {
		return upper, s[:idx], true
	}
	return "", s, false
}

func formatOffset(minutes int) string {
	sign := "+"
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	h, m := minutes/60, minutes%60
	digits := func(n int) string {
		if n < 10 {
			return "0" + itoa(n)
		}
		return itoa(n)
	}
	return " " + sign + digits(h) + digits(m)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [4]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
