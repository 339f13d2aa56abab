package aggregate

import "sort"

// Summary describes a set of scores.
type Summary struct {
	Count  int     `json:"count"`
	Min    int     `json:"min"`
	Max    int     `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// Summarize computes count, extremes, mean and median. An empty input yields the zero Summary.
func Summarize(scores []int) Summary {
	if len(scores) == 0 {
		return Summary{}
	}
	sorted := append([]int(nil), scores...)
	sort.Ints(sorted)
	sum := 0
	for _, s := range sorted {
		sum += s
	}
	n := len(sorted)
	median := float64(sorted[n/2])
	if n%2 == 0 {
		median = float64(sorted[n/2-1]+sorted[n/2]) / 2
	}
	return Summary{
		Count:  n,
		Min:    sorted[0],
		Max:    sorted[n-1],
		Mean:   float64(sum) / float64(n),
		Median: median,
	}
}

// Values returns the scores of a mapping in ascending key order.
func Values[K ~string](scores map[K]int) []int {
	sorted := Sort(scores, ByKey)
	out := make([]int, len(sorted))
	for i, e := range sorted {
		out[i] = e.Score
	}
	return out
}
