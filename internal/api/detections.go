package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/observation"
)

// detectionResponse is the JSON shape of one enriched detection. All
// timestamps are UTC with a Z suffix.
type detectionResponse struct {
	ID              string   `json:"id"`
	SourceNode      string   `json:"source_node,omitempty"`
	ScientificName  string   `json:"scientific_name"`
	CommonName      string   `json:"common_name"`
	Confidence      float64  `json:"confidence"`
	Timestamp       string   `json:"timestamp"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	Threshold       float64  `json:"threshold"`
	Week            int      `json:"week"`
	Sensitivity     float64  `json:"sensitivity"`
	Overlap         float64  `json:"overlap"`
	ClipPath        string   `json:"clip_path,omitempty"`
	IOCEnglishName  string   `json:"ioc_english_name,omitempty"`
	TranslatedName  string   `json:"translated_name,omitempty"`
	Family          string   `json:"family,omitempty"`
	Genus           string   `json:"genus,omitempty"`
	Order           string   `json:"order,omitempty"`
	IsFirstEver     bool     `json:"is_first_ever"`
	IsFirstInPeriod bool     `json:"is_first_in_period"`
	FirstEverAt     *string  `json:"first_ever_at,omitempty"`
	FirstPeriodAt   *string  `json:"first_period_at,omitempty"`
}

func utcTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

func optionalTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := utcTimestamp(*t)
	return &formatted
}

func toDetectionResponse(env *datastore.DetectionEnvelope) detectionResponse {
	return detectionResponse{
		ID:              env.ID,
		SourceNode:      env.SourceNode,
		ScientificName:  env.ScientificName,
		CommonName:      env.CommonName,
		Confidence:      env.Confidence,
		Timestamp:       utcTimestamp(env.Timestamp),
		Latitude:        env.Latitude,
		Longitude:       env.Longitude,
		Threshold:       env.Threshold,
		Week:            env.Week,
		Sensitivity:     env.Sensitivity,
		Overlap:         env.Overlap,
		ClipPath:        env.ClipPath,
		IOCEnglishName:  env.IOCEnglishName,
		TranslatedName:  env.TranslatedName,
		Family:          env.Family,
		Genus:           env.Genus,
		Order:           env.OrderName,
		IsFirstEver:     env.IsFirstEver,
		IsFirstInPeriod: env.IsFirstInPeriod,
		FirstEverAt:     optionalTimestamp(env.FirstEverAt),
		FirstPeriodAt:   optionalTimestamp(env.FirstPeriodAt),
	}
}

// IngestDetection accepts one wire-contract detection event. Validation
// failures respond 422; filtered and buffered outcomes are business
// results and respond 200 like accepted ones.
func (c *Controller) IngestDetection(ctx echo.Context) error {
	var event observation.Event
	if err := ctx.Bind(&event); err != nil {
		return c.handleError(ctx, errors.New(err).
			Component("api").
			Category(errors.CategoryValidation).
			Context("operation", "bind_ingest_event").
			Build(), http.StatusUnprocessableEntity)
	}

	result, err := c.deps.Ingest.Ingest(ctx.Request().Context(), &event)
	if err != nil {
		return c.handleError(ctx, err, http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, result)
}

// listResponse wraps a page of results with its paging echo.
type listResponse struct {
	Data    []detectionResponse `json:"data"`
	Page    int                 `json:"page"`
	PerPage int                 `json:"per_page"`
}

// ListDetections runs an enriched detection search.
func (c *Controller) ListDetections(ctx echo.Context) error {
	paging, err := parsePagination(ctx)
	if err != nil {
		return c.handleError(ctx, err, http.StatusUnprocessableEntity)
	}
	start, end, err := parseTimeRange(ctx)
	if err != nil {
		return c.handleError(ctx, err, http.StatusUnprocessableEntity)
	}

	filters := datastore.QueryFilters{
		Family:                 ctx.QueryParam("family"),
		Genus:                  ctx.QueryParam("genus"),
		Start:                  start,
		End:                    end,
		Limit:                  paging.PerPage,
		Offset:                 paging.Offset(),
		OrderBy:                ctx.QueryParam("order_by"),
		OrderDesc:              ctx.QueryParam("order") != "asc",
		IncludeFirstDetections: ctx.QueryParam("include_firsts") == "true",
	}
	if species := ctx.QueryParams()["species"]; len(species) > 0 {
		filters.Species = species
	}
	for param, target := range map[string]**float64{
		"min_confidence": &filters.MinConfidence,
		"max_confidence": &filters.MaxConfidence,
	} {
		raw := ctx.QueryParam(param)
		if raw == "" {
			continue
		}
		value, perr := strconv.ParseFloat(raw, 64)
		if perr != nil || value < 0 || value > 1 {
			return c.handleError(ctx, errors.Newf("invalid %s %q", param, raw).
				Component("api").
				Category(errors.CategoryValidation).
				Build(), http.StatusUnprocessableEntity)
		}
		*target = &value
	}

	envelopes, err := c.deps.Engine.Query(ctx.Request().Context(), filters)
	if err != nil {
		return c.handleError(ctx, err, http.StatusInternalServerError)
	}

	data := make([]detectionResponse, 0, len(envelopes))
	for i := range envelopes {
		data = append(data, toDetectionResponse(&envelopes[i]))
	}
	return ctx.JSON(http.StatusOK, listResponse{Data: data, Page: paging.Page, PerPage: paging.PerPage})
}

// GetDetection returns one detection with its enrichment.
func (c *Controller) GetDetection(ctx echo.Context) error {
	id := ctx.Param("id")
	detected, err := c.deps.Store.Get(id)
	if err != nil {
		if datastore.IsRecordNotFound(err) {
			return ctx.JSON(http.StatusNotFound, errorResponse{Error: fmt.Sprintf("detection %s not found", id)})
		}
		return c.handleError(ctx, err, http.StatusInternalServerError)
	}

	// Re-query through the engine for the enrichment columns. The
	// species and timestamp bounds keep the scan narrow; the id match
	// picks this row out of same-second siblings.
	envelopes, err := c.deps.Engine.Query(ctx.Request().Context(), datastore.QueryFilters{
		Species:                []string{detected.ScientificName},
		Start:                  detected.Timestamp.Add(-time.Second),
		End:                    detected.Timestamp.Add(time.Second),
		IncludeFirstDetections: true,
		Limit:                  defaultPerPage,
	})
	if err != nil {
		return c.handleError(ctx, err, http.StatusInternalServerError)
	}
	for i := range envelopes {
		if envelopes[i].ID == id {
			return ctx.JSON(http.StatusOK, toDetectionResponse(&envelopes[i]))
		}
	}
	// Reference databases unavailable; serve the bare row.
	return ctx.JSON(http.StatusOK, toDetectionResponse(&datastore.DetectionEnvelope{Detection: detected}))
}

// DeleteDetection removes a detection row. The clip on disk is left to
// the retention janitor.
func (c *Controller) DeleteDetection(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := c.deps.Store.Delete(id); err != nil {
		if datastore.IsRecordNotFound(err) {
			return ctx.JSON(http.StatusNotFound, errorResponse{Error: fmt.Sprintf("detection %s not found", id)})
		}
		return c.handleError(ctx, err, http.StatusInternalServerError)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// locationUpdate is the PATCH body for a coordinate correction.
type locationUpdate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// UpdateDetectionLocation corrects the capture coordinates, the only
// mutable detection attributes.
func (c *Controller) UpdateDetectionLocation(ctx echo.Context) error {
	id := ctx.Param("id")
	var body locationUpdate
	if err := ctx.Bind(&body); err != nil {
		return c.handleError(ctx, errors.New(err).
			Component("api").
			Category(errors.CategoryValidation).
			Build(), http.StatusUnprocessableEntity)
	}
	if body.Latitude < -90 || body.Latitude > 90 || body.Longitude < -180 || body.Longitude > 180 {
		return c.handleError(ctx, errors.Newf("coordinates out of range").
			Component("api").
			Category(errors.CategoryValidation).
			Build(), http.StatusUnprocessableEntity)
	}

	if err := c.deps.Store.UpdateLocation(id, body.Latitude, body.Longitude); err != nil {
		if datastore.IsRecordNotFound(err) {
			return ctx.JSON(http.StatusNotFound, errorResponse{Error: fmt.Sprintf("detection %s not found", id)})
		}
		return c.handleError(ctx, err, http.StatusInternalServerError)
	}
	return ctx.NoContent(http.StatusNoContent)
}
