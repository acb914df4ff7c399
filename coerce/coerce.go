// Package coerce converts raw textual field values from regulatory
// extracts into typed values under a fixed per-field policy.
//
// Every function is total: for any input, including garbage, it returns
// either a typed value or nil, never an error. Empty strings and the
// literal token "NULL" coerce to nil for every kind.
package coerce

import (
	"math"
	"strconv"
	"strings"
)

func isNull(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	return trimmed == "" || trimmed == "NULL"
}

// Int64 parses an integer field. Decimal-looking values are accepted
// and truncated, matching the permissive numeric parsing of the source
// extracts. Any parse failure yields nil.
func Int64(raw string) *int64 {
	if isNull(raw) {
		return nil
	}
	s := strings.TrimSpace(raw)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &v
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	v := int64(f)
	return &v
}

// Float64 parses a decimal field. Parse failures, NaN and infinities
// all yield nil.
func Float64(raw string) *float64 {
	if isNull(raw) {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Bool distinguishes unknown from false: a null raw yields nil, any
// other raw yields true iff it case-insensitively matches one of
// y, yes, true, 1.
func Bool(raw string) *bool {
	if isNull(raw) {
		return nil
	}
	v := false
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "y", "yes", "true", "1":
		v = true
	}
	return &v
}

// Date normalizes the two date shapes seen across release years:
// 8-digit YYYYMMDD and MM/DD/YYYY both become ISO YYYY-MM-DD. Any other
// shape is returned unchanged: malformed dates survive as opaque
// strings instead of being rejected.
func Date(raw string) *string {
	if isNull(raw) {
		return nil
	}
	s := strings.TrimSpace(raw)

	if len(s) == 8 && allDigits(s) {
		iso := s[:4] + "-" + s[4:6] + "-" + s[6:]
		return &iso
	}

	if parts := strings.Split(s, "/"); len(parts) == 3 {
		month, day, year := parts[0], parts[1], parts[2]
		iso := year + "-" + pad2(month) + "-" + pad2(day)
		return &iso
	}

	return &s
}

// Text trims and truncates a string field to max bytes to satisfy the
// storage column width.
func Text(raw string, max int) *string {
	if isNull(raw) {
		return nil
	}
	s := strings.TrimSpace(raw)
	if max > 0 && len(s) > max {
		s = s[:max]
	}
	return &s
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
