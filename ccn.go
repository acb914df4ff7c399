package regsync

import (
	"regexp"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]`)

// StandardizeCCN normalizes a CMS certification number to the 6-char
// form used as the stable facility identifier. Source files sometimes
// drop leading zeros or carry punctuation, so everything non-alphanumeric
// is stripped and the remainder is left-padded to six characters.
// Returns "" when nothing usable remains.
func StandardizeCCN(raw string) string {
	s := nonAlphanumeric.ReplaceAllString(strings.TrimSpace(raw), "")
	if s == "" {
		return ""
	}
	for len(s) < 6 {
		s = "0" + s
	}
	return s[:6]
}

// StateFromCCN derives the two-character state code embedded in the
// CCN prefix, used when an extract's own state column is absent.
func StateFromCCN(ccn string) string {
	if len(ccn) >= 2 {
		return ccn[:2]
	}
	return ""
}
