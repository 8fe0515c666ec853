package pipeline

import (
	"sort"
	"strings"

	"donorsync/internal"
)

// DedupeStats reports what the dedup pass discarded.
type DedupeStats struct {
	Input      int
	Unkeyable  int
	Duplicates int
	Kept       int
}

// Dedupe keeps one row per (donor number, facility) pair. With a donation
// date mapped, rows are ordered most-recent-first before the scan, so the
// latest visit wins and exact date ties keep input order; without one, the
// first row encountered wins with no recency guarantee. Duplicate rows are
// discarded whole, never merged field by field. Rows that cannot be keyed
// are dropped up front and counted.
func Dedupe(rows []MappedRow) ([]MappedRow, DedupeStats) {
	stats := DedupeStats{Input: len(rows)}

	keyable := make([]MappedRow, 0, len(rows))
	for _, row := range rows {
		num := strings.TrimSpace(row.Values[internal.FieldDonorNumber])
		fac := strings.TrimSpace(row.Values[internal.FieldFacility])
		if num == "" || fac == "" {
			stats.Unkeyable++
			continue
		}
		keyable = append(keyable, row)
	}

	// Unparseable or absent dates are zero values and sort behind every
	// real donation date.
	sort.SliceStable(keyable, func(i, j int) bool {
		return keyable[i].DonationDate.After(keyable[j].DonationDate)
	})

	seen := map[string]bool{}
	out := make([]MappedRow, 0, len(keyable))
	for _, row := range keyable {
		key := internal.CompositeKey(row.Values[internal.FieldDonorNumber], row.Values[internal.FieldFacility])
		if seen[key] {
			stats.Duplicates++
			continue
		}
		seen[key] = true
		out = append(out, row)
	}
	stats.Kept = len(out)
	return out, stats
}
