package analytics

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCurve(t *testing.T) {
	points := CollectorCurve([]string{"A", "B", "A", "C", "B", "D"})

	require.Len(t, points, 6)
	assert.Equal(t, 1.0, points[0].Species)
	assert.Equal(t, 2.0, points[1].Species)
	assert.Equal(t, 2.0, points[2].Species, "repeat observation adds no species")
	assert.Equal(t, 3.0, points[3].Species)
	assert.Equal(t, 4.0, points[5].Species)
	assert.Equal(t, 6, points[5].SampleSize)
}

func TestCollectorCurveEmpty(t *testing.T) {
	assert.Empty(t, CollectorCurve(nil))
}

func TestRandomizedCurveIsMonotonic(t *testing.T) {
	species := []string{"A", "A", "B", "C", "C", "C", "D", "E", "A", "B"}
	points := RandomizedCurve(species, rand.New(rand.NewSource(42)))

	require.Len(t, points, len(species))
	for i := 1; i < len(points); i++ {
		assert.GreaterOrEqual(t, points[i].Species, points[i-1].Species)
	}
	// The full sample always contains every species.
	assert.InDelta(t, 5.0, points[len(points)-1].Species, 1e-9)
}

func TestRandomizedCurveDeterministicWithSeed(t *testing.T) {
	species := []string{"A", "B", "C", "A", "D", "B", "E"}
	first := RandomizedCurve(species, rand.New(rand.NewSource(7)))
	second := RandomizedCurve(species, rand.New(rand.NewSource(7)))

	assert.Equal(t, first, second)
}

func TestRarefactionEndpoints(t *testing.T) {
	counts := map[string]int64{"A": 10, "B": 5, "C": 1}
	points := Rarefaction(counts)

	require.NotEmpty(t, points)
	last := points[len(points)-1]
	assert.Equal(t, 16, last.SampleSize)
	assert.InDelta(t, 3.0, last.Species, 1e-9, "the full sample holds all species")

	for i := 1; i < len(points); i++ {
		assert.GreaterOrEqual(t, points[i].Species, points[i-1].Species, "expectation is monotone in m")
	}
	for _, p := range points {
		assert.GreaterOrEqual(t, p.Species, 0.0)
		assert.LessOrEqual(t, p.Species, 3.0)
	}
}

func TestRarefactionSingleDrawExpectation(t *testing.T) {
	// With counts {A:1, B:1} a single draw finds exactly one species.
	points := Rarefaction(map[string]int64{"A": 1, "B": 1})

	require.NotEmpty(t, points)
	assert.Equal(t, 1, points[0].SampleSize)
	assert.InDelta(t, 1.0, points[0].Species, 1e-9)
}

func TestRarefactionStepRule(t *testing.T) {
	// 500 observations: step = max(1, 500/100) = 5.
	counts := map[string]int64{"A": 300, "B": 150, "C": 50}
	points := Rarefaction(counts)

	require.NotEmpty(t, points)
	assert.Equal(t, 5, points[0].SampleSize)
	assert.Equal(t, 10, points[1].SampleSize)
	assert.Equal(t, 500, points[len(points)-1].SampleSize)
}

func TestRarefactionCapsSampleSize(t *testing.T) {
	counts := map[string]int64{"A": 900, "B": 800, "C": 700}
	points := Rarefaction(counts)

	require.NotEmpty(t, points)
	assert.Equal(t, 1000, points[len(points)-1].SampleSize, "curve is capped at 1000 draws")
}

func TestRarefactionEmpty(t *testing.T) {
	assert.Empty(t, Rarefaction(map[string]int64{}))
	assert.Empty(t, Rarefaction(map[string]int64{"A": 0}))
}
