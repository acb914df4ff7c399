// Package columns maps a batch's actual header spellings to canonical
// field names. CMS renames columns between release years, so the
// mapping is resolved fresh for every batch of incoming headers rather
// than fixed per run.
package columns

import (
	"github.com/samber/lo"
)

// Candidates lists, per canonical field, the header spellings seen
// historically, newest first. Adding a fresh spelling to the front of a
// list keeps older files working: their header is still found later in
// the scan.
type Candidates map[string][]string

// Resolve picks, for each canonical field, the first candidate header
// present in the batch. Canonical fields with no match are omitted:
// a missing column is schema drift, not an error.
func Resolve(headers []string, candidates Candidates) map[string]string {
	present := lo.SliceToMap(headers, func(h string) (string, struct{}) {
		return h, struct{}{}
	})

	resolved := make(map[string]string, len(candidates))
	for canonical, names := range candidates {
		for _, name := range names {
			if _, ok := present[name]; ok {
				resolved[canonical] = name
				break
			}
		}
	}
	return resolved
}
