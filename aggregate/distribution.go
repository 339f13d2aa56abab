package aggregate

import (
	"errors"
	"fmt"
)

// Band is a labelled score interval [Low, High). The last band of a set is closed at High.
type Band struct {
	Label string `json:"label" yaml:"label" env:"LABEL"`
	Low   int    `json:"low" yaml:"low" env:"LOW"`
	High  int    `json:"high" yaml:"high" env:"HIGH"`
}

// Bucket is one row of a distribution table.
type Bucket struct {
	Label string `json:"label"`
	Low   int    `json:"low"`
	High  int    `json:"high"`
	Count int    `json:"count"`
}

// DefaultBands are the grade bands used when none are configured.
func DefaultBands() []Band {
	return []Band{
		{Label: "fail", Low: 0, High: 60},
		{Label: "pass", Low: 60, High: 70},
		{Label: "fair", Low: 70, High: 80},
		{Label: "good", Low: 80, High: 90},
		{Label: "excellent", Low: 90, High: 100},
	}
}

// ValidateBands requires at least one band, unique labels, and contiguous ascending intervals.
func ValidateBands(bands []Band) error {
	if len(bands) == 0 {
		return errors.New("at least one band is required")
	}
	seen := make(map[string]struct{}, len(bands))
	for i, b := range bands {
		if b.Label == "" {
			return fmt.Errorf("band %d has no label", i)
		}
		if _, dup := seen[b.Label]; dup {
			return fmt.Errorf("band label %q repeated", b.Label)
		}
		seen[b.Label] = struct{}{}
		if b.High <= b.Low {
			return fmt.Errorf("band %q: high %d must exceed low %d", b.Label, b.High, b.Low)
		}
		if i > 0 && bands[i-1].High != b.Low {
			return fmt.Errorf("band %q must start at %d", b.Label, bands[i-1].High)
		}
	}
	return nil
}

// Distribution counts scores per band. Every band appears once in declaration
// order, empty ones with count 0. Scores below the first band count in the first
// band and scores above the last count in the last, so the counts always sum to len(scores).
func Distribution(scores []int, bands []Band) []Bucket {
	out := make([]Bucket, len(bands))
	for i, b := range bands {
		out[i] = Bucket{Label: b.Label, Low: b.Low, High: b.High}
	}
	if len(bands) == 0 {
		return out
	}
	for _, s := range scores {
		out[bandIndex(s, bands)].Count++
	}
	return out
}

// bandIndex picks the last band whose Low is <= s, which makes every band
// half-open except the last.
func bandIndex(s int, bands []Band) int {
	idx := 0
	for i, b := range bands {
		if s >= b.Low {
			idx = i
		}
	}
	return idx
}
