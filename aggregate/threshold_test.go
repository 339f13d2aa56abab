package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThresholdFilter_StrictAbove(t *testing.T) {
	scores := map[string]int{"S1": 90, "S2": 78, "S3": 95, "S4": 80}
	assert.Equal(t, map[string]int{"S1": 90, "S3": 95}, ThresholdFilter(scores, 80, Above))
	assert.Equal(t, map[string]int{"S2": 78}, ThresholdFilter(scores, 80, Below))
}

func TestThresholdFilter_PartitionProperty(t *testing.T) {
	scores := map[string]int{"a": 10, "b": 50, "c": 50, "d": 99, "e": 0, "f": 51}
	for _, th := range []int{-1, 0, 10, 50, 51, 99, 100} {
		above := ThresholdFilter(scores, th, Above)
		below := ThresholdFilter(scores, th, Below)
		union := map[string]int{}
		for k, v := range above {
			_, clash := below[k]
			assert.False(t, clash, "threshold %d: %s in both directions", th, k)
			union[k] = v
		}
		for k, v := range below {
			union[k] = v
		}
		for k, v := range scores {
			if v == th {
				union[k] = v
			}
		}
		assert.Equal(t, scores, union, "threshold %d", th)
	}
}

func TestThresholdFilter_UnknownDirectionKeepsNothing(t *testing.T) {
	assert.Empty(t, ThresholdFilter(map[string]int{"a": 1}, 0, Direction(0)))
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("high")
	assert.NoError(t, err)
	assert.Equal(t, Above, d)
	d, err = ParseDirection("below")
	assert.NoError(t, err)
	assert.Equal(t, Below, d)
	_, err = ParseDirection("equal")
	assert.Error(t, err)
}
