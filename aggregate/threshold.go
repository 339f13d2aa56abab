package aggregate

import (
	"fmt"
	"strings"
)

// Direction selects which side of a threshold ThresholdFilter keeps.
type Direction int

const (
	Above Direction = iota + 1
	Below
)

// ParseDirection accepts "above"/"high" and "below"/"low".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "above", "high", "gt":
		return Above, nil
	case "below", "low", "lt":
		return Below, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

func (d Direction) String() string {
	switch d {
	case Above:
		return "above"
	case Below:
		return "below"
	default:
		return "unknown"
	}
}

// ThresholdFilter keeps entries strictly above or strictly below threshold.
// A score equal to the threshold is excluded in both directions.
func ThresholdFilter[K ~string](scores map[K]int, threshold int, dir Direction) map[K]int {
	out := make(map[K]int)
	for k, v := range scores {
		switch {
		case dir == Above && v > threshold:
			out[k] = v
		case dir == Below && v < threshold:
			out[k] = v
		}
	}
	return out
}
