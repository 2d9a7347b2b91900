package analytics

// Community maps scientific names to detection counts for one site or
// period.
type Community map[string]int64

// SimilarityScores bundles the three community similarity measures.
// Each is in [0, 1], symmetric, and 1 on identical communities.
type SimilarityScores struct {
	Jaccard    float64 `json:"jaccard"`
	Sorensen   float64 `json:"sorensen"`
	BrayCurtis float64 `json:"bray_curtis"`
}

// Similarity compares two communities. Two empty communities are
// treated as identical.
func Similarity(a, b Community) SimilarityScores {
	return SimilarityScores{
		Jaccard:    Jaccard(a, b),
		Sorensen:   Sorensen(a, b),
		BrayCurtis: BrayCurtis(a, b),
	}
}

// Jaccard is |A∩B| / |A∪B| over the species sets.
func Jaccard(a, b Community) float64 {
	shared, union := setOverlap(a, b)
	if union == 0 {
		return 1
	}
	return float64(shared) / float64(union)
}

// Sorensen is 2|A∩B| / (|A|+|B|) over the species sets.
func Sorensen(a, b Community) float64 {
	shared, _ := setOverlap(a, b)
	sizeA, sizeB := setSize(a), setSize(b)
	if sizeA+sizeB == 0 {
		return 1
	}
	return 2 * float64(shared) / float64(sizeA+sizeB)
}

// BrayCurtis is the abundance-weighted similarity
// 2·Σ min(a_s, b_s) / (Σa + Σb).
func BrayCurtis(a, b Community) float64 {
	var shared, totalA, totalB int64
	for species, countA := range a {
		if countA <= 0 {
			continue
		}
		totalA += countA
		if countB := b[species]; countB > 0 {
			shared += min(countA, countB)
		}
	}
	for _, countB := range b {
		if countB > 0 {
			totalB += countB
		}
	}
	if totalA+totalB == 0 {
		return 1
	}
	return 2 * float64(shared) / float64(totalA+totalB)
}

func setSize(c Community) int {
	n := 0
	for _, count := range c {
		if count > 0 {
			n++
		}
	}
	return n
}

func setOverlap(a, b Community) (shared, union int) {
	for species, count := range a {
		if count <= 0 {
			continue
		}
		union++
		if b[species] > 0 {
			shared++
		}
	}
	for species, count := range b {
		if count > 0 && a[species] <= 0 {
			union++
		}
	}
	return shared, union
}
