// Package units converts between byte counts and human-readable sizes.
package units

import (
	"fmt"
	"strconv"
	"strings"
)

// Binary multipliers keyed by the suffix letter ParseSize accepts.
var multipliers = map[byte]int64{
	'B': 1,
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
	'T': 1 << 40,
}

// ParseSize parses sizes such as "512", "100K", "1.5G" or "4TiB" into bytes.
// Suffixes are case-insensitive powers of 1024.
func ParseSize(s string) (int64, error) {
	num := strings.TrimSpace(s)
	if num == "" {
		return 0, fmt.Errorf("empty size string")
	}
	if len(num) > 3 && strings.EqualFold(num[len(num)-2:], "iB") {
		num = num[:len(num)-2]
	}

	mult := int64(1)
	if m, ok := multipliers[upper(num[len(num)-1])]; ok {
		mult = m
		num = strings.TrimSpace(num[:len(num)-1])
	}
	if num == "" {
		return 0, fmt.Errorf("invalid size: %q", s)
	}

	if n, err := strconv.ParseInt(num, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative size: %q", s)
		}
		return n * mult, nil
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid size: %q", s)
	}
	return int64(f * float64(mult)), nil
}

func upper(c byte) byte {
	if 'a' <= c && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

// FormatBytes renders b with one decimal in the largest binary unit that
// keeps the value at or above 1.
func FormatBytes(b int64) string {
	if b < 1<<10 {
		return fmt.Sprintf("%d B", b)
	}
	const units = "KMGTPE"
	v := float64(b) / (1 << 10)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %ciB", v, units[i])
}
