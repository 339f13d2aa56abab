package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counts(buckets []Bucket) map[string]int {
	out := map[string]int{}
	for _, b := range buckets {
		out[b.Label] = b.Count
	}
	return out
}

func TestDistribution_BoundariesAndEmptyBuckets(t *testing.T) {
	got := Distribution([]int{59, 60, 89, 90, 100}, DefaultBands())
	require.Len(t, got, 5)

	labels := make([]string, len(got))
	for i, b := range got {
		labels[i] = b.Label
	}
	assert.Equal(t, []string{"fail", "pass", "fair", "good", "excellent"}, labels)
	assert.Equal(t, map[string]int{"fail": 1, "pass": 1, "fair": 0, "good": 1, "excellent": 2}, counts(got))
}

func TestDistribution_CountsSumToInput(t *testing.T) {
	inputs := [][]int{
		nil,
		{0},
		{-5, 105, 50},
		{61, 62, 63, 99, 100, 70, 79, 80},
	}
	for _, in := range inputs {
		got := Distribution(in, DefaultBands())
		assert.Len(t, got, len(DefaultBands()))
		total := 0
		for _, b := range got {
			total += b.Count
		}
		assert.Equal(t, len(in), total, "input %v", in)
	}
}

func TestDistribution_OutOfRangeClamps(t *testing.T) {
	got := counts(Distribution([]int{-5, 105}, DefaultBands()))
	assert.Equal(t, 1, got["fail"])
	assert.Equal(t, 1, got["excellent"])
}

func TestDistribution_NoBands(t *testing.T) {
	assert.Empty(t, Distribution([]int{1, 2}, nil))
}

func TestValidateBands(t *testing.T) {
	require.NoError(t, ValidateBands(DefaultBands()))

	cases := map[string][]Band{
		"empty":     nil,
		"no label":  {{Label: "", Low: 0, High: 10}},
		"dup label": {{Label: "a", Low: 0, High: 10}, {Label: "a", Low: 10, High: 20}},
		"inverted":  {{Label: "a", Low: 10, High: 0}},
		"gap":       {{Label: "a", Low: 0, High: 10}, {Label: "b", Low: 20, High: 30}},
	}
	for name, bands := range cases {
		assert.Error(t, ValidateBands(bands), name)
	}
}
