package aggregate

import (
	"fmt"
	"sort"
	"strings"
)

// Order selects the ordering Sort produces.
type Order int

const (
	// ByKey orders by key only. It is the roster order of class listings.
	ByKey Order = iota
	Ascending
	Descending
)

// ParseOrder accepts "asc", "desc" or "" (key order).
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "key", "id":
		return ByKey, nil
	case "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	default:
		return ByKey, fmt.Errorf("unknown order %q", s)
	}
}

func (o Order) String() string {
	switch o {
	case Ascending:
		return "asc"
	case Descending:
		return "desc"
	default:
		return "key"
	}
}

// Entry is one (key, score) pair of an ordered result.
type Entry[K ~string] struct {
	Key   K   `json:"key"`
	Score int `json:"score"`
}

// Sort returns the mapping as a sequence in the requested order. Equal scores
// fall back to ascending key order, so the result is a total order.
func Sort[K ~string](scores map[K]int, order Order) []Entry[K] {
	out := make([]Entry[K], 0, len(scores))
	for k, v := range scores {
		out = append(out, Entry[K]{Key: k, Score: v})
	}
	sortEntries(out, order)
	return out
}

// SortEntries returns a sorted copy of entries.
func SortEntries[K ~string](entries []Entry[K], order Order) []Entry[K] {
	out := append([]Entry[K](nil), entries...)
	sortEntries(out, order)
	return out
}

func sortEntries[K ~string](es []Entry[K], order Order) {
	sort.SliceStable(es, func(i, j int) bool { return less(es[i], es[j], order) })
}

func less[K ~string](a, b Entry[K], order Order) bool {
	if a.Score == b.Score || order == ByKey {
		return a.Key < b.Key
	}
	if order == Descending {
		return a.Score > b.Score
	}
	return a.Score < b.Score
}

// Position is an entry with its standard competition rank (1, 2, 2, 4).
type Position[K ~string] struct {
	Entry[K]
	Rank int `json:"rank"`
}

// Rank orders scores descending and assigns competition ranks; tied scores share a rank.
func Rank[K ~string](scores map[K]int) []Position[K] {
	sorted := Sort(scores, Descending)
	out := make([]Position[K], len(sorted))
	for i, e := range sorted {
		rank := i + 1
		if i > 0 && e.Score == sorted[i-1].Score {
			rank = out[i-1].Rank
		}
		out[i] = Position[K]{Entry: e, Rank: rank}
	}
	return out
}
