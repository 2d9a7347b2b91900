package analytics

import "math"

// HourlyConditions pairs one hour's detection count with the weather
// observed in that hour. Nil weather fields mean the variable was not
// reported and the pair is skipped for that variable.
type HourlyConditions struct {
	DetectionCount int64
	Temperature    *float64
	Humidity       *float64
	Pressure       *float64
	WindSpeed      *float64
	Precipitation  *float64
}

// WeatherCorrelations holds Pearson r between hourly detection counts
// and each weather variable, with the number of non-null pairs each
// coefficient was computed from.
type WeatherCorrelations struct {
	Temperature   CorrelationResult `json:"temperature"`
	Humidity      CorrelationResult `json:"humidity"`
	Pressure      CorrelationResult `json:"pressure"`
	WindSpeed     CorrelationResult `json:"wind_speed"`
	Precipitation CorrelationResult `json:"precipitation"`
}

// CorrelationResult is one Pearson coefficient with its sample size.
type CorrelationResult struct {
	R     float64 `json:"r"`
	Pairs int     `json:"pairs"`
}

// WeatherCorrelation computes Pearson r between detection counts and
// each weather variable across the given hours. Hours where a variable
// is null are skipped for that variable only; a degenerate series
// (under two pairs or zero variance) yields r = 0.
func WeatherCorrelation(hours []HourlyConditions) WeatherCorrelations {
	return WeatherCorrelations{
		Temperature:   correlate(hours, func(h HourlyConditions) *float64 { return h.Temperature }),
		Humidity:      correlate(hours, func(h HourlyConditions) *float64 { return h.Humidity }),
		Pressure:      correlate(hours, func(h HourlyConditions) *float64 { return h.Pressure }),
		WindSpeed:     correlate(hours, func(h HourlyConditions) *float64 { return h.WindSpeed }),
		Precipitation: correlate(hours, func(h HourlyConditions) *float64 { return h.Precipitation }),
	}
}

func correlate(hours []HourlyConditions, pick func(HourlyConditions) *float64) CorrelationResult {
	xs := make([]float64, 0, len(hours))
	ys := make([]float64, 0, len(hours))
	for _, hour := range hours {
		value := pick(hour)
		if value == nil {
			continue
		}
		xs = append(xs, float64(hour.DetectionCount))
		ys = append(ys, *value)
	}
	return CorrelationResult{R: Pearson(xs, ys), Pairs: len(xs)}
}

// Pearson returns the sample correlation coefficient of two equal
// length series, or 0 when it is undefined (short series, zero
// variance, mismatched lengths).
func Pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n != len(ys) || n < 2 {
		return 0
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/float64(n), sumY/float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	denom := math.Sqrt(varX * varY)
	if denom == 0 {
		return 0
	}
	return cov / denom
}
