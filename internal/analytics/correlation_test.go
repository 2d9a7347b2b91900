package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func f64(v float64) *float64 { return &v }

func TestPearsonPerfectCorrelation(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	up := []float64{2, 4, 6, 8, 10}
	down := []float64{10, 8, 6, 4, 2}

	assert.InDelta(t, 1.0, Pearson(xs, up), 1e-9)
	assert.InDelta(t, -1.0, Pearson(xs, down), 1e-9)
}

func TestPearsonUndefinedIsZero(t *testing.T) {
	assert.Zero(t, Pearson([]float64{1}, []float64{2}), "single pair")
	assert.Zero(t, Pearson([]float64{1, 2}, []float64{5, 5}), "zero variance")
	assert.Zero(t, Pearson([]float64{1, 2, 3}, []float64{1, 2}), "length mismatch")
	assert.Zero(t, Pearson(nil, nil))
}

func TestWeatherCorrelationSkipsNullPairs(t *testing.T) {
	hours := []HourlyConditions{
		{DetectionCount: 1, Temperature: f64(10)},
		{DetectionCount: 2, Temperature: nil}, // skipped
		{DetectionCount: 3, Temperature: f64(20)},
		{DetectionCount: 5, Temperature: f64(30)},
	}

	result := WeatherCorrelation(hours)
	assert.Equal(t, 3, result.Temperature.Pairs)
	assert.Greater(t, result.Temperature.R, 0.9)
	assert.Zero(t, result.Humidity.Pairs, "humidity never reported")
	assert.Zero(t, result.Humidity.R)
}

func TestWeatherCorrelationIndependentVariables(t *testing.T) {
	hours := []HourlyConditions{
		{DetectionCount: 4, Temperature: f64(12), WindSpeed: f64(9)},
		{DetectionCount: 7, Temperature: f64(15), WindSpeed: f64(6)},
		{DetectionCount: 9, Temperature: f64(18), WindSpeed: f64(3)},
	}

	result := WeatherCorrelation(hours)
	assert.Greater(t, result.Temperature.R, 0.99, "counts rise with temperature")
	assert.Less(t, result.WindSpeed.R, -0.99, "counts fall with wind")
}

func TestPearsonBounds(t *testing.T) {
	xs := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	ys := []float64{2, 7, 1, 8, 2, 8, 1, 8}

	r := Pearson(xs, ys)
	assert.GreaterOrEqual(t, r, -1.0)
	assert.LessOrEqual(t, r, 1.0)
}
