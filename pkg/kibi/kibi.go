// Package kibi formats and parses human readable byte sizes, using powers of 1024.
package kibi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidByteSizeString = errors.New("Invalid byte size string")

type unit struct {
	suffix string
	size   int64
}

// Ordered from largest to smallest
var units = []unit{
	{"PB", 1 << 50},
	{"TB", 1 << 40},
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
}

// Bytes renders b in the largest whole unit, eg "35 MB".
// Values are truncated, not rounded.
func Bytes(b int64) string {
	for _, u := range units {
		if b >= u.size {
			return fmt.Sprintf("%v %v", b/u.size, u.suffix)
		}
	}
	return fmt.Sprintf("%v bytes", b)
}

// Parse accepts an integer followed by an optional suffix.
// Suffixes are case insensitive, and may be the full unit ("mb"), or just the letter ("m").
// "bytes" and no suffix both mean a multiplier of 1.
func Parse(v string) (int64, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	end := 0
	for end < len(v) && v[end] >= '0' && v[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, ErrInvalidByteSizeString
	}
	value, err := strconv.ParseInt(v[:end], 10, 64)
	if err != nil {
		return 0, err
	}
	suffix := strings.TrimSpace(v[end:])
	if suffix == "" || suffix == "bytes" {
		return value, nil
	}
	for _, u := range units {
		full := strings.ToLower(u.suffix)
		if suffix == full || suffix == full[:1] {
			return value * u.size, nil
		}
	}
	return 0, ErrInvalidByteSizeString
}
