package analytics

import (
	"math/rand"
	"sort"
)

// AccumulationPoint is one step of a species accumulation curve:
// after SampleSize observations, Species distinct species are expected.
type AccumulationPoint struct {
	SampleSize int     `json:"sample_size"`
	Species    float64 `json:"species"`
}

// maxRarefactionSamples caps the rarefaction curve length; beyond a
// thousand draws the curve is visually flat for any realistic station.
const maxRarefactionSamples = 1000

// maxPermutations bounds the randomized accumulation averaging.
const maxPermutations = 100

// CollectorCurve walks the observations in their given order and emits
// the running count of distinct species after each one.
func CollectorCurve(species []string) []AccumulationPoint {
	seen := make(map[string]struct{}, len(species))
	points := make([]AccumulationPoint, 0, len(species))
	for i, name := range species {
		seen[name] = struct{}{}
		points = append(points, AccumulationPoint{SampleSize: i + 1, Species: float64(len(seen))})
	}
	return points
}

// RandomizedCurve averages collector curves over up to maxPermutations
// random shuffles of the observation order. The rng parameter makes the
// permutation sequence reproducible; nil uses an unseeded source.
func RandomizedCurve(species []string, rng *rand.Rand) []AccumulationPoint {
	if len(species) == 0 {
		return nil
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	permutations := maxPermutations
	sums := make([]float64, len(species))
	shuffled := make([]string, len(species))
	copy(shuffled, species)

	for p := 0; p < permutations; p++ {
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		seen := make(map[string]struct{}, len(shuffled))
		for i, name := range shuffled {
			seen[name] = struct{}{}
			sums[i] += float64(len(seen))
		}
	}

	points := make([]AccumulationPoint, len(species))
	for i, sum := range sums {
		points[i] = AccumulationPoint{SampleSize: i + 1, Species: sum / float64(permutations)}
	}
	return points
}

// Rarefaction computes the analytic expectation of species richness at
// sub-sample sizes m from per-species counts:
//
//	E[S(m)] = Σ_s (1 − Π_{i=0..m−1} (N − c_s − i) / (N − i))
//
// Sample sizes run from the step to min(N, 1000) in steps of
// max(1, maxSampleSize/100); the final point at maxSampleSize is always
// included. Expectations are clipped at zero against floating point
// drift.
func Rarefaction(counts map[string]int64) []AccumulationPoint {
	var total int64
	species := make([]int64, 0, len(counts))
	for _, count := range counts {
		if count <= 0 {
			continue
		}
		species = append(species, count)
		total += count
	}
	if total == 0 {
		return nil
	}
	sort.Slice(species, func(i, j int) bool { return species[i] > species[j] })

	maxSampleSize := int(total)
	if maxSampleSize > maxRarefactionSamples {
		maxSampleSize = maxRarefactionSamples
	}
	step := maxSampleSize / 100
	if step < 1 {
		step = 1
	}

	var points []AccumulationPoint
	for m := step; m <= maxSampleSize; m += step {
		points = append(points, AccumulationPoint{SampleSize: m, Species: expectedSpecies(species, total, m)})
	}
	if len(points) == 0 || points[len(points)-1].SampleSize != maxSampleSize {
		points = append(points, AccumulationPoint{SampleSize: maxSampleSize, Species: expectedSpecies(species, total, maxSampleSize)})
	}
	return points
}

// expectedSpecies evaluates the hypergeometric expectation for one
// sub-sample size. The inner product is the probability that a species
// with count c is entirely absent from a draw of m.
func expectedSpecies(species []int64, total int64, m int) float64 {
	var expected float64
	for _, c := range species {
		if total-c < int64(m) {
			// The draw is larger than the rest of the pool, the
			// species cannot be missed.
			expected++
			continue
		}
		absent := 1.0
		for i := 0; i < m; i++ {
			absent *= float64(total-c-int64(i)) / float64(total-int64(i))
		}
		expected += 1 - absent
	}
	if expected < 0 {
		expected = 0
	}
	return expected
}
