package analytics

// TurnoverPoint describes the species turnover between two consecutive
// sliding windows of an ordered period series.
type TurnoverPoint struct {
	FromPeriod string  `json:"from_period"`
	ToPeriod   string  `json:"to_period"`
	Gained     int     `json:"gained"`
	Lost       int     `json:"lost"`
	Turnover   float64 `json:"turnover"`
}

// PeriodCommunity is one period of a temporal series with its species
// counts.
type PeriodCommunity struct {
	Period    string
	Community Community
}

// TemporalTurnover slides a window of windowSize periods over the
// series and computes, between each window and its successor,
// (gained + lost) / (2·union) over the windows' species sets. The
// result is 0 exactly when both windows hold the same species set.
// Window sizes below one are treated as one.
func TemporalTurnover(series []PeriodCommunity, windowSize int) []TurnoverPoint {
	if windowSize < 1 {
		windowSize = 1
	}
	if len(series) <= windowSize {
		return nil
	}

	points := make([]TurnoverPoint, 0, len(series)-windowSize)
	for i := 0; i+windowSize < len(series); i++ {
		current := windowSpecies(series[i : i+windowSize])
		next := windowSpecies(series[i+1 : i+1+windowSize])

		gained, lost, union := 0, 0, 0
		for species := range current {
			union++
			if _, ok := next[species]; !ok {
				lost++
			}
		}
		for species := range next {
			if _, ok := current[species]; !ok {
				union++
				gained++
			}
		}

		turnover := 0.0
		if union > 0 {
			turnover = float64(gained+lost) / float64(2*union)
		}
		points = append(points, TurnoverPoint{
			FromPeriod: series[i].Period,
			ToPeriod:   series[i+1].Period,
			Gained:     gained,
			Lost:       lost,
			Turnover:   turnover,
		})
	}
	return points
}

func windowSpecies(window []PeriodCommunity) map[string]struct{} {
	set := make(map[string]struct{})
	for _, period := range window {
		for species, count := range period.Community {
			if count > 0 {
				set[species] = struct{}{}
			}
		}
	}
	return set
}
