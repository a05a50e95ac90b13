// Package formatting provides human-readable formatting utilities
// for common value types such as byte sizes and phone numbers.
package formatting

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

// Units stop at EB; larger units overflow int64.
var units = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}

// ByteSize is a byte count that prints and parses with base-1024 units.
type ByteSize int64

// Common sizes.
const (
	KB ByteSize = 1 << (10 * (iota + 1))
	MB
	GB
)

// ParseByteSize parses sizes such as "1MB", "1.5 kb" or "4096". A bare
// number is bytes. Units are case-insensitive.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty byte size")
	}

	num, unit := s, ""
	if i := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) && r != '.' }); i >= 0 {
		num, unit = s[:i], strings.TrimSpace(s[i:])
	}
	if num == "" {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}

	value, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size number %q: %w", num, err)
	}

	exp := 0
	if unit != "" {
		exp = slices.Index(units, strings.ToUpper(unit))
		if exp < 0 {
			return 0, fmt.Errorf("unknown byte size unit: %q", unit)
		}
	}

	size := value * math.Pow(1024, float64(exp))
	if size >= math.MaxInt64 {
		return 0, fmt.Errorf("byte size out of range: %q", s)
	}
	return ByteSize(size), nil
}

// Format renders the size in the largest unit that keeps the value at or
// above one. Negative precision is treated as zero.
func (b ByteSize) Format(precision int) string {
	if b == 0 {
		return "0 B"
	}
	precision = max(precision, 0)

	value := float64(b)
	exp := 0
	for math.Abs(value) >= 1024 && exp < len(units)-1 {
		value /= 1024
		exp++
	}

	return strconv.FormatFloat(value, 'f', precision, 64) + " " + units[exp]
}

// String formats with one decimal place.
func (b ByteSize) String() string {
	return b.Format(1)
}

// LogValue renders the size in log output.
func (b ByteSize) LogValue() slog.Value {
	return slog.StringValue(b.String())
}

// UnmarshalText parses config values such as max_body_size = "1MB".
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}
