package templates

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordMatchedDirections(t *testing.T) {
	// Equality and template-keyword-as-prefix.
	assert.True(t, keywordMatched("price", []string{"price"}))
	assert.True(t, keywordMatched("minute", []string{"minutes"}))

	// Containment runs template-into-intent only: "minute" must not match
	// the shorter "mint".
	assert.False(t, keywordMatched("minute", []string{"mint"}))
	assert.True(t, keywordMatched("game results", []string{"results"}))

	assert.False(t, keywordMatched("weather", []string{"whether or not"}))
}

func TestComputeIDF(t *testing.T) {
	ts := []*Template{
		{Keywords: []string{"shared", "rare"}},
		{Keywords: []string{"shared"}},
	}
	idf := computeIDF(ts)

	assert.InDelta(t, 0, idf["shared"], 1e-9)
	assert.InDelta(t, math.Log(2), idf["rare"], 1e-9)
}
