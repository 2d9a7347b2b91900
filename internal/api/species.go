package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/imageprovider"
)

// speciesSummaryResponse is one per-species aggregate row.
type speciesSummaryResponse struct {
	ScientificName  string  `json:"scientific_name"`
	CommonName      string  `json:"common_name"`
	IOCEnglishName  string  `json:"ioc_english_name,omitempty"`
	TranslatedName  string  `json:"translated_name,omitempty"`
	Family          string  `json:"family,omitempty"`
	Genus           string  `json:"genus,omitempty"`
	Order           string  `json:"order,omitempty"`
	DetectionCount  int     `json:"detection_count"`
	AvgConfidence   float64 `json:"avg_confidence"`
	LatestDetection string  `json:"latest_detection"`
	FirstEverAt     *string `json:"first_ever_at,omitempty"`
	FirstPeriodAt   *string `json:"first_period_at,omitempty"`
}

// SpeciesSummary returns the per-species aggregate since an optional
// lower bound.
func (c *Controller) SpeciesSummary(ctx echo.Context) error {
	start, _, err := parseTimeRange(ctx)
	if err != nil {
		return c.handleError(ctx, err, http.StatusUnprocessableEntity)
	}

	rows, err := c.deps.Engine.SpeciesSummary(ctx.Request().Context(), datastore.SummaryOptions{
		Since:                  start,
		Family:                 ctx.QueryParam("family"),
		IncludeFirstDetections: ctx.QueryParam("include_firsts") == "true",
	})
	if err != nil {
		return c.handleError(ctx, err, http.StatusInternalServerError)
	}

	data := make([]speciesSummaryResponse, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		data = append(data, speciesSummaryResponse{
			ScientificName:  row.ScientificName,
			CommonName:      row.CommonName,
			IOCEnglishName:  row.IOCEnglishName,
			TranslatedName:  row.TranslatedName,
			Family:          row.Family,
			Genus:           row.Genus,
			Order:           row.OrderName,
			DetectionCount:  row.DetectionCount,
			AvgConfidence:   row.AvgConfidence,
			LatestDetection: utcTimestamp(row.LatestDetection),
			FirstEverAt:     optionalTimestamp(row.FirstEverAt),
			FirstPeriodAt:   optionalTimestamp(row.FirstPeriodAt),
		})
	}
	return ctx.JSON(http.StatusOK, data)
}

// BestRecordings returns the highest-confidence detections, optionally
// limited per species.
func (c *Controller) BestRecordings(ctx echo.Context) error {
	opts := datastore.BestRecordingsOptions{
		PerSpeciesLimit: 1,
		Species:         ctx.QueryParam("species"),
		Family:          ctx.QueryParam("family"),
		Genus:           ctx.QueryParam("genus"),
	}
	if raw := ctx.QueryParam("per_species"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return c.handleError(ctx, errors.Newf("invalid per_species %q", raw).
				Component("api").
				Category(errors.CategoryValidation).
				Build(), http.StatusUnprocessableEntity)
		}
		opts.PerSpeciesLimit = limit
	}
	if raw := ctx.QueryParam("min_confidence"); raw != "" {
		minConf, err := strconv.ParseFloat(raw, 64)
		if err != nil || minConf < 0 || minConf > 1 {
			return c.handleError(ctx, errors.Newf("invalid min_confidence %q", raw).
				Component("api").
				Category(errors.CategoryValidation).
				Build(), http.StatusUnprocessableEntity)
		}
		opts.MinConfidence = minConf
	}

	envelopes, err := c.deps.Engine.BestRecordings(ctx.Request().Context(), opts)
	if err != nil {
		return c.handleError(ctx, err, http.StatusInternalServerError)
	}

	data := make([]detectionResponse, 0, len(envelopes))
	for i := range envelopes {
		data = append(data, toDetectionResponse(&envelopes[i]))
	}
	return ctx.JSON(http.StatusOK, data)
}

// SpeciesImage returns the cached bird image attribution for a
// scientific name.
func (c *Controller) SpeciesImage(ctx echo.Context) error {
	if c.deps.Images == nil {
		return ctx.JSON(http.StatusServiceUnavailable, errorResponse{Error: "image provider unavailable"})
	}

	name := ctx.Param("name")
	image, err := c.deps.Images.Get(ctx.Request().Context(), name)
	if err != nil {
		if errors.Is(err, imageprovider.ErrImageNotFound) {
			return ctx.JSON(http.StatusNotFound, errorResponse{Error: "no image found for " + name})
		}
		return c.handleError(ctx, err, http.StatusBadGateway)
	}
	return ctx.JSON(http.StatusOK, image)
}
