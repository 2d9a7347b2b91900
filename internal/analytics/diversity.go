// Package analytics computes ecological indices over detection
// aggregates. Every function is pure: inputs are in-memory counts and
// observation series produced by the query layer, never SQL.
package analytics

import (
	"math"
	"sort"
	"time"
)

// DiversityIndices holds the standard alpha diversity measures for one
// community of species counts.
type DiversityIndices struct {
	Shannon  float64 `json:"shannon"`
	Simpson  float64 `json:"simpson"`
	Richness int     `json:"richness"`
	Evenness float64 `json:"evenness"`
	Total    int64   `json:"total"`
}

// Diversity computes Shannon H', Simpson 1-D, richness and Pielou
// evenness from per-species counts. Evenness is defined as 1.0 for a
// single-species community and 0.0 for an empty one.
func Diversity(counts map[string]int64) DiversityIndices {
	var total int64
	richness := 0
	for _, count := range counts {
		if count <= 0 {
			continue
		}
		total += count
		richness++
	}

	indices := DiversityIndices{Richness: richness, Total: total}
	if total == 0 {
		return indices
	}

	var shannon, simpson float64
	for _, count := range counts {
		if count <= 0 {
			continue
		}
		p := float64(count) / float64(total)
		shannon -= p * math.Log(p)
		simpson += p * p
	}

	indices.Shannon = shannon
	indices.Simpson = 1 - simpson
	switch richness {
	case 1:
		indices.Evenness = 1.0
	default:
		indices.Evenness = shannon / math.Log(float64(richness))
	}
	return indices
}

// Observation is one detection reduced to the fields the analytics
// functions need.
type Observation struct {
	ScientificName string
	Timestamp      time.Time
}

// Bucket selects the period length of a diversity timeline.
type Bucket string

const (
	BucketHourly Bucket = "hourly"
	BucketDaily  Bucket = "daily"
	BucketWeekly Bucket = "weekly"
)

// TimelinePoint is the diversity of one period of a timeline.
type TimelinePoint struct {
	Period  string           `json:"period"`
	Start   time.Time        `json:"start"`
	Indices DiversityIndices `json:"indices"`
}

// DiversityTimeline buckets the observations by period in the given
// location and computes diversity per bucket. Periods are emitted in
// chronological order; empty periods between observations are skipped.
func DiversityTimeline(observations []Observation, bucket Bucket, loc *time.Location) []TimelinePoint {
	if loc == nil {
		loc = time.UTC
	}

	starts := make(map[string]time.Time)
	buckets := make(map[string]map[string]int64)
	for _, obs := range observations {
		start := bucketStart(obs.Timestamp.In(loc), bucket)
		key := bucketLabel(start, bucket)
		counts, ok := buckets[key]
		if !ok {
			counts = make(map[string]int64)
			buckets[key] = counts
			starts[key] = start
		}
		counts[obs.ScientificName]++
	}

	points := make([]TimelinePoint, 0, len(buckets))
	for key, counts := range buckets {
		points = append(points, TimelinePoint{
			Period:  key,
			Start:   starts[key],
			Indices: Diversity(counts),
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Start.Before(points[j].Start) })
	return points
}

func bucketStart(t time.Time, bucket Bucket) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch bucket {
	case BucketHourly:
		return day.Add(time.Duration(t.Hour()) * time.Hour)
	case BucketWeekly:
		// ISO weeks start on Monday.
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	default:
		return day
	}
}

func bucketLabel(start time.Time, bucket Bucket) string {
	if bucket == BucketHourly {
		return start.Format("2006-01-02 15:00")
	}
	return start.Format(time.DateOnly)
}
