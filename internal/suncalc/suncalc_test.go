package suncalc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSunEventTimesOrdering(t *testing.T) {
	sc := New(60.17, 24.94, time.UTC) // Helsinki
	date := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	times, err := sc.GetSunEventTimes(date)
	require.NoError(t, err)

	assert.True(t, times.CivilDawn.Before(times.Sunrise), "civil dawn precedes sunrise")
	assert.True(t, times.Sunrise.Before(times.Sunset), "sunrise precedes sunset")
	assert.True(t, times.Sunset.Before(times.CivilDusk), "sunset precedes civil dusk")
}

func TestGetSunEventTimesCached(t *testing.T) {
	sc := New(43.65, -79.38, time.UTC) // Toronto
	date := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)

	first, err := sc.GetSunEventTimes(date)
	require.NoError(t, err)
	second, err := sc.GetSunEventTimes(date)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	sc.lock.RLock()
	assert.Len(t, sc.cache, 1)
	sc.lock.RUnlock()
}

func TestGetSunriseAndSunsetHelpers(t *testing.T) {
	sc := New(43.65, -79.38, time.UTC)
	date := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)

	sunrise, err := sc.GetSunriseTime(date)
	require.NoError(t, err)
	sunset, err := sc.GetSunsetTime(date)
	require.NoError(t, err)

	assert.True(t, sunrise.Before(sunset))
	// Equinox day is close to twelve hours long.
	assert.InDelta(t, 12.0, sunset.Sub(sunrise).Hours(), 0.5)
}

func TestEventTimesReportedInLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Toronto")
	require.NoError(t, err)

	sc := New(43.65, -79.38, loc)
	times, err := sc.GetSunEventTimes(time.Date(2025, 3, 20, 0, 0, 0, 0, loc))
	require.NoError(t, err)

	assert.Equal(t, loc.String(), times.Sunrise.Location().String())
}
