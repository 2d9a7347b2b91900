package api

import (
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/analytics"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
)

func validationf(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("api").
		Category(errors.CategoryValidation).
		Build()
}

func (c *Controller) communityCounts(start, end time.Time) (map[string]int64, error) {
	counts, err := c.deps.Store.SpeciesCounts(start, end)
	if err != nil {
		return nil, err
	}
	community := make(map[string]int64, len(counts))
	for _, row := range counts {
		community[row.ScientificName] = int64(row.Count)
	}
	return community, nil
}

// AnalyticsDiversity returns alpha diversity for a time range, or a
// bucketed timeline when the bucket parameter is given.
func (c *Controller) AnalyticsDiversity(ctx echo.Context) error {
	start, end, err := parseTimeRange(ctx)
	if err != nil {
		return c.handleError(ctx, err, http.StatusUnprocessableEntity)
	}

	if raw := ctx.QueryParam("bucket"); raw != "" {
		bucket := analytics.Bucket(raw)
		switch bucket {
		case analytics.BucketHourly, analytics.BucketDaily, analytics.BucketWeekly:
		default:
			return c.handleError(ctx, validationf("invalid bucket %q", raw), http.StatusUnprocessableEntity)
		}

		detections, err := c.deps.Store.DetectionsInRange(start, end)
		if err != nil {
			return c.handleError(ctx, err, http.StatusInternalServerError)
		}
		observations := make([]analytics.Observation, 0, len(detections))
		for i := range detections {
			observations = append(observations, analytics.Observation{
				ScientificName: detections[i].ScientificName,
				Timestamp:      detections[i].Timestamp,
			})
		}
		timeline := analytics.DiversityTimeline(observations, bucket, c.settings.Location())
		return ctx.JSON(http.StatusOK, timeline)
	}

	community, err := c.communityCounts(start, end)
	if err != nil {
		return c.handleError(ctx, err, http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, analytics.Diversity(community))
}

// AnalyticsAccumulation returns a species accumulation curve. Modes:
// collector (default), randomized, rarefaction.
func (c *Controller) AnalyticsAccumulation(ctx echo.Context) error {
	start, end, err := parseTimeRange(ctx)
	if err != nil {
		return c.handleError(ctx, err, http.StatusUnprocessableEntity)
	}

	mode := ctx.QueryParam("mode")
	if mode == "" {
		mode = "collector"
	}

	if mode == "rarefaction" {
		community, err := c.communityCounts(start, end)
		if err != nil {
			return c.handleError(ctx, err, http.StatusInternalServerError)
		}
		return ctx.JSON(http.StatusOK, analytics.Rarefaction(community))
	}

	detections, err := c.deps.Store.DetectionsInRange(start, end)
	if err != nil {
		return c.handleError(ctx, err, http.StatusInternalServerError)
	}
	species := make([]string, 0, len(detections))
	for i := range detections {
		species = append(species, detections[i].ScientificName)
	}

	switch mode {
	case "collector":
		return ctx.JSON(http.StatusOK, analytics.CollectorCurve(species))
	case "randomized":
		return ctx.JSON(http.StatusOK, analytics.RandomizedCurve(species, rand.New(rand.NewSource(time.Now().UnixNano()))))
	default:
		return c.handleError(ctx, validationf("invalid mode %q", mode), http.StatusUnprocessableEntity)
	}
}

// AnalyticsSimilarity compares the communities of two time ranges.
func (c *Controller) AnalyticsSimilarity(ctx echo.Context) error {
	parseRange := func(prefix string) (time.Time, time.Time, error) {
		startRaw, endRaw := ctx.QueryParam(prefix+"_start"), ctx.QueryParam(prefix+"_end")
		if startRaw == "" || endRaw == "" {
			return time.Time{}, time.Time{}, validationf("%s_start and %s_end are required", prefix, prefix)
		}
		start, err := parseDateOrTime(startRaw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end, err := parseDateOrTime(endRaw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if len(endRaw) == len("2006-01-02") {
			end = end.AddDate(0, 0, 1)
		}
		return start, end, nil
	}

	aStart, aEnd, err := parseRange("a")
	if err != nil {
		return c.handleError(ctx, err, http.StatusUnprocessableEntity)
	}
	bStart, bEnd, err := parseRange("b")
	if err != nil {
		return c.handleError(ctx, err, http.StatusUnprocessableEntity)
	}

	communityA, err := c.communityCounts(aStart, aEnd)
	if err != nil {
		return c.handleError(ctx, err, http.StatusInternalServerError)
	}
	communityB, err := c.communityCounts(bStart, bEnd)
	if err != nil {
		return c.handleError(ctx, err, http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, analytics.Similarity(communityA, communityB))
}

// AnalyticsTurnover returns species turnover between consecutive
// periods of the range.
func (c *Controller) AnalyticsTurnover(ctx echo.Context) error {
	start, end, err := parseTimeRange(ctx)
	if err != nil {
		return c.handleError(ctx, err, http.StatusUnprocessableEntity)
	}

	bucket := analytics.Bucket(ctx.QueryParam("bucket"))
	if bucket == "" {
		bucket = analytics.BucketDaily
	}
	switch bucket {
	case analytics.BucketDaily, analytics.BucketWeekly:
	default:
		return c.handleError(ctx, validationf("invalid bucket %q", bucket), http.StatusUnprocessableEntity)
	}

	window := 1
	if raw := ctx.QueryParam("window"); raw != "" {
		window, err = strconv.Atoi(raw)
		if err != nil || window < 1 {
			return c.handleError(ctx, validationf("invalid window %q", raw), http.StatusUnprocessableEntity)
		}
	}

	detections, err := c.deps.Store.DetectionsInRange(start, end)
	if err != nil {
		return c.handleError(ctx, err, http.StatusInternalServerError)
	}

	series := periodSeries(detections, bucket, c.settings.Location())
	return ctx.JSON(http.StatusOK, analytics.TemporalTurnover(series, window))
}

// periodSeries groups detections into per-period communities in
// chronological order.
func periodSeries(detections []datastore.Detection, bucket analytics.Bucket, loc *time.Location) []analytics.PeriodCommunity {
	if loc == nil {
		loc = time.UTC
	}
	communities := make(map[string]analytics.Community)
	for i := range detections {
		local := detections[i].Timestamp.In(loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		if bucket == analytics.BucketWeekly {
			day = day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
		}
		key := day.Format(time.DateOnly)
		community, ok := communities[key]
		if !ok {
			community = make(analytics.Community)
			communities[key] = community
		}
		community[detections[i].ScientificName]++
	}

	periods := make([]string, 0, len(communities))
	for key := range communities {
		periods = append(periods, key)
	}
	sort.Strings(periods)

	series := make([]analytics.PeriodCommunity, 0, len(periods))
	for _, key := range periods {
		series = append(series, analytics.PeriodCommunity{Period: key, Community: communities[key]})
	}
	return series
}

// AnalyticsWeather correlates hourly detection counts with the stored
// weather observations of the same hours.
func (c *Controller) AnalyticsWeather(ctx echo.Context) error {
	start, end, err := parseTimeRange(ctx)
	if err != nil {
		return c.handleError(ctx, err, http.StatusUnprocessableEntity)
	}

	points, err := c.deps.Store.HourlyWeatherSeries(start, end)
	if err != nil {
		return c.handleError(ctx, err, http.StatusInternalServerError)
	}

	hours := make([]analytics.HourlyConditions, 0, len(points))
	for _, point := range points {
		hours = append(hours, analytics.HourlyConditions{
			DetectionCount: int64(point.DetectionCount),
			Temperature:    point.Temperature,
			Humidity:       point.Humidity,
			Pressure:       point.Pressure,
			WindSpeed:      point.WindSpeed,
			Precipitation:  point.Precipitation,
		})
	}
	return ctx.JSON(http.StatusOK, analytics.WeatherCorrelation(hours))
}
