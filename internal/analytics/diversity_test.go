package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiversityKnownValues(t *testing.T) {
	// p = (0.4, 0.4, 0.2)
	indices := Diversity(map[string]int64{"A": 4, "B": 4, "C": 2})

	assert.InDelta(t, 1.0549, indices.Shannon, 1e-4)
	assert.InDelta(t, 0.64, indices.Simpson, 1e-4)
	assert.InDelta(t, 0.9602, indices.Evenness, 1e-4)
	assert.Equal(t, 3, indices.Richness)
	assert.Equal(t, int64(10), indices.Total)
}

func TestDiversityEmptyCommunity(t *testing.T) {
	indices := Diversity(map[string]int64{})

	assert.Zero(t, indices.Shannon)
	assert.Zero(t, indices.Simpson)
	assert.Zero(t, indices.Evenness)
	assert.Zero(t, indices.Richness)
}

func TestDiversitySingleSpecies(t *testing.T) {
	indices := Diversity(map[string]int64{"Corvus corax": 17})

	assert.Zero(t, indices.Shannon)
	assert.Zero(t, indices.Simpson)
	assert.Equal(t, 1.0, indices.Evenness, "evenness of one species is defined as 1")
	assert.Equal(t, 1, indices.Richness)
}

func TestDiversityIgnoresNonPositiveCounts(t *testing.T) {
	with := Diversity(map[string]int64{"A": 4, "B": 4, "C": 2, "D": 0, "E": -3})
	without := Diversity(map[string]int64{"A": 4, "B": 4, "C": 2})

	assert.Equal(t, without, with)
}

func TestDiversityBounds(t *testing.T) {
	communities := []map[string]int64{
		{"A": 1},
		{"A": 1, "B": 1},
		{"A": 100, "B": 1},
		{"A": 5, "B": 5, "C": 5, "D": 5},
		{"A": 1000, "B": 3, "C": 1, "D": 1, "E": 1},
	}
	for _, counts := range communities {
		indices := Diversity(counts)
		assert.GreaterOrEqual(t, indices.Shannon, 0.0)
		assert.GreaterOrEqual(t, indices.Simpson, 0.0)
		assert.LessOrEqual(t, indices.Simpson, 1.0)
		assert.GreaterOrEqual(t, indices.Evenness, 0.0)
		assert.LessOrEqual(t, indices.Evenness, 1.0)
	}
}

func TestDiversityTimelineBucketsByDay(t *testing.T) {
	day1 := time.Date(2025, 5, 1, 6, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 5, 2, 7, 30, 0, 0, time.UTC)
	observations := []Observation{
		{ScientificName: "Turdus merula", Timestamp: day1},
		{ScientificName: "Turdus merula", Timestamp: day1.Add(time.Hour)},
		{ScientificName: "Parus major", Timestamp: day1.Add(2 * time.Hour)},
		{ScientificName: "Parus major", Timestamp: day2},
	}

	points := DiversityTimeline(observations, BucketDaily, time.UTC)

	require.Len(t, points, 2)
	assert.Equal(t, "2025-05-01", points[0].Period)
	assert.Equal(t, 2, points[0].Indices.Richness)
	assert.Equal(t, "2025-05-02", points[1].Period)
	assert.Equal(t, 1, points[1].Indices.Richness)
}

func TestDiversityTimelineHourlyUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Toronto")
	require.NoError(t, err)

	// 02:30 UTC is 22:30 the previous evening in Toronto.
	ts := time.Date(2025, 6, 10, 2, 30, 0, 0, time.UTC)
	points := DiversityTimeline([]Observation{{ScientificName: "Strix varia", Timestamp: ts}}, BucketHourly, loc)

	require.Len(t, points, 1)
	assert.Equal(t, "2025-06-09 22:00", points[0].Period)
}

func TestDiversityTimelineWeeklyStartsMonday(t *testing.T) {
	// 2025-05-07 is a Wednesday; its ISO week starts Monday 2025-05-05.
	ts := time.Date(2025, 5, 7, 12, 0, 0, 0, time.UTC)
	points := DiversityTimeline([]Observation{{ScientificName: "Sturnus vulgaris", Timestamp: ts}}, BucketWeekly, time.UTC)

	require.Len(t, points, 1)
	assert.Equal(t, "2025-05-05", points[0].Period)
}
