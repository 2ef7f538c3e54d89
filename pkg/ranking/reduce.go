// Package ranking reduces accumulated rows into the final ranked result set.
package ranking

import (
	"cmp"
	"math"
	"slices"

	"github.com/Sternrassler/cmc-listing-scraper/pkg/normalize"
)

// MissingRank is the sentinel used for rows without a rank so they sort last.
const MissingRank int64 = math.MaxInt64

// Reduce deduplicates rows by ID and sorts them by rank. The input slice is
// not modified.
func Reduce(rows []normalize.Row) []normalize.Row {
	return SortByRank(Dedup(rows))
}

// Dedup keeps the first occurrence of every ID in input order. Rows without
// an ID are never considered duplicates.
func Dedup(rows []normalize.Row) []normalize.Row {
	seen := make(map[string]struct{}, len(rows))
	out := make([]normalize.Row, 0, len(rows))
	for _, r := range rows {
		if r.HasID() {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
		}
		out = append(out, r)
	}
	return out
}

// SortByRank returns a stably sorted copy ordered by ascending rank, with
// unranked rows last in their original relative order.
func SortByRank(rows []normalize.Row) []normalize.Row {
	out := slices.Clone(rows)
	slices.SortStableFunc(out, func(a, b normalize.Row) int {
		return cmp.Compare(rankKey(a), rankKey(b))
	})
	return out
}

func rankKey(r normalize.Row) int64 {
	if r.Rank == nil {
		return MissingRank
	}
	return *r.Rank
}
