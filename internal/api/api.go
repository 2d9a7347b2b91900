// Package api serves the HTTP surface of the station: detection
// ingest and queries, analytics, media, weather, system state and the
// notification center, all under /api/v2.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/detection"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/imageprovider"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/ingest"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/logging"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/notification"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/observability"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/suncalc"
)

const (
	defaultPerPage = 50
	maxPerPage     = 500
)

func getLogger() *slog.Logger {
	if logger := logging.ForService("api"); logger != nil {
		return logger
	}
	return slog.Default()
}

// Dependencies bundles the components the controller exposes over HTTP.
// Store, Engine and Ingest are required; the rest may be nil and their
// endpoints respond 503 when missing.
type Dependencies struct {
	Store         datastore.Interface
	Engine        *datastore.EnrichedQueryEngine
	Ingest        *ingest.Service
	Bus           *detection.Bus
	Images        *imageprovider.Cache
	Sun           *suncalc.SunCalc
	Notifications *notification.Service
	Metrics       *observability.Metrics
}

// Controller wires the HTTP routes to the station components.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	settings *conf.Settings
	deps     Dependencies
	logger   *slog.Logger
	started  time.Time
}

// New creates the controller and registers all routes.
func New(settings *conf.Settings, deps Dependencies) *Controller {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	c := &Controller{
		Echo:     e,
		settings: settings,
		deps:     deps,
		logger:   getLogger(),
		started:  time.Now(),
	}
	c.Group = e.Group("/api/v2")
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	g := c.Group

	g.POST("/detections/ingest", c.IngestDetection)
	g.GET("/detections", c.ListDetections)
	g.GET("/detections/stream", c.StreamDetections)
	g.GET("/detections/:id", c.GetDetection)
	g.DELETE("/detections/:id", c.DeleteDetection)
	g.PATCH("/detections/:id/location", c.UpdateDetectionLocation)

	g.GET("/species/summary", c.SpeciesSummary)
	g.GET("/species/best", c.BestRecordings)
	g.GET("/species/:name/image", c.SpeciesImage)

	g.GET("/analytics/diversity", c.AnalyticsDiversity)
	g.GET("/analytics/accumulation", c.AnalyticsAccumulation)
	g.GET("/analytics/similarity", c.AnalyticsSimilarity)
	g.GET("/analytics/turnover", c.AnalyticsTurnover)
	g.GET("/analytics/weather", c.AnalyticsWeather)

	g.GET("/media/audio/:id", c.ServeAudioClip)

	g.GET("/weather/hourly/:date", c.HourlyWeather)
	g.GET("/weather/sun/:date", c.SunTimes)

	g.GET("/system/storage", c.SystemStorage)
	g.GET("/system/info", c.SystemInfo)
	g.GET("/health", c.Health)

	g.GET("/notifications", c.ListNotifications)
	g.POST("/notifications/:id/read", c.MarkNotificationRead)

	if c.deps.Metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.deps.Metrics.Handler()))
	}
}

// Start begins serving on the configured web server port. Blocks until
// the server stops.
func (c *Controller) Start() error {
	addr := ":" + c.settings.WebServer.Port
	c.logger.Info("API server listening", "addr", addr)
	if err := c.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("operation", "serve").
			Build()
	}
	return nil
}

// Shutdown stops the server gracefully.
func (c *Controller) Shutdown(ctx context.Context) error {
	return c.Echo.Shutdown(ctx)
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// handleError maps an error onto an HTTP status by its category and
// writes the uniform error body. fallback applies to uncategorized
// errors.
func (c *Controller) handleError(ctx echo.Context, err error, fallback int) error {
	status := fallback
	switch {
	case errors.IsCategory(err, errors.CategoryNotFound):
		status = http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryValidation):
		status = http.StatusUnprocessableEntity
	}
	if status >= http.StatusInternalServerError {
		c.logger.Error("Request failed",
			"method", ctx.Request().Method,
			"path", ctx.Request().URL.Path,
			"error", err)
	}
	return ctx.JSON(status, errorResponse{Error: err.Error()})
}

// pagination holds validated paging parameters.
type pagination struct {
	Page    int
	PerPage int
}

func (p pagination) Offset() int { return (p.Page - 1) * p.PerPage }

// parsePagination reads page and per_page query parameters. Page starts
// at 1; per_page is clamped to [1, 500] with a default of 50.
func parsePagination(ctx echo.Context) (pagination, error) {
	p := pagination{Page: 1, PerPage: defaultPerPage}

	if raw := ctx.QueryParam("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return p, errors.Newf("invalid page %q", raw).
				Component("api").
				Category(errors.CategoryValidation).
				Build()
		}
		p.Page = page
	}
	if raw := ctx.QueryParam("per_page"); raw != "" {
		perPage, err := strconv.Atoi(raw)
		if err != nil || perPage < 1 || perPage > maxPerPage {
			return p, errors.Newf("invalid per_page %q, must be 1-%d", raw, maxPerPage).
				Component("api").
				Category(errors.CategoryValidation).
				Build()
		}
		p.PerPage = perPage
	}
	return p, nil
}

// parseDateOrTime accepts RFC 3339 timestamps or plain dates; plain
// dates are interpreted in the server's local zone.
func parseDateOrTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, time.Local)
	if err != nil {
		return time.Time{}, errors.Newf("invalid time %q", raw).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return t, nil
}

// parseTimeRange reads optional start and end query parameters in
// RFC 3339 or plain date form. Zero times mean unbounded.
func parseTimeRange(ctx echo.Context) (start, end time.Time, err error) {
	if raw := ctx.QueryParam("start"); raw != "" {
		if start, err = parseDateOrTime(raw); err != nil {
			return start, end, err
		}
	}
	if raw := ctx.QueryParam("end"); raw != "" {
		if end, err = parseDateOrTime(raw); err != nil {
			return start, end, err
		}
		// A plain date upper bound covers the whole day.
		if len(ctx.QueryParam("end")) == len("2006-01-02") {
			end = end.AddDate(0, 0, 1)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, errors.Newf("end precedes start").
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return start, end, nil
}
