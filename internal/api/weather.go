package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
)

// hourlyWeatherResponse is one stored hourly observation.
type hourlyWeatherResponse struct {
	HourEpoch     int64   `json:"hour_epoch"`
	Time          string  `json:"time"`
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	Pressure      float64 `json:"pressure"`
	WindSpeed     float64 `json:"wind_speed"`
	WindDeg       float64 `json:"wind_deg"`
	Precipitation float64 `json:"precipitation"`
	Clouds        int     `json:"clouds"`
	Provider      string  `json:"provider,omitempty"`
	Description   string  `json:"description,omitempty"`
}

// HourlyWeather returns the stored weather observations for one local
// date.
func (c *Controller) HourlyWeather(ctx echo.Context) error {
	date, err := time.ParseInLocation(time.DateOnly, ctx.Param("date"), c.settings.Location())
	if err != nil {
		return c.handleError(ctx, validationf("invalid date %q", ctx.Param("date")), http.StatusUnprocessableEntity)
	}

	firstHour := date.Unix() / 3600
	data := make([]hourlyWeatherResponse, 0, 24)
	for hour := int64(0); hour < 24; hour++ {
		row, err := c.deps.Store.GetHourlyWeather(firstHour + hour)
		if err != nil {
			if datastore.IsRecordNotFound(err) {
				continue
			}
			return c.handleError(ctx, err, http.StatusInternalServerError)
		}
		data = append(data, hourlyWeatherResponse{
			HourEpoch:     row.HourEpoch,
			Time:          utcTimestamp(row.Time),
			Temperature:   row.Temperature,
			Humidity:      row.Humidity,
			Pressure:      row.Pressure,
			WindSpeed:     row.WindSpeed,
			WindDeg:       row.WindDeg,
			Precipitation: row.Precipitation,
			Clouds:        row.Clouds,
			Provider:      row.Provider,
			Description:   row.Description,
		})
	}
	return ctx.JSON(http.StatusOK, data)
}

// SunTimes returns the astral sun event times for one date at the
// station coordinates.
func (c *Controller) SunTimes(ctx echo.Context) error {
	if c.deps.Sun == nil {
		return ctx.JSON(http.StatusServiceUnavailable, errorResponse{Error: "sun calculator unavailable"})
	}

	date, err := time.ParseInLocation(time.DateOnly, ctx.Param("date"), c.settings.Location())
	if err != nil {
		return c.handleError(ctx, validationf("invalid date %q", ctx.Param("date")), http.StatusUnprocessableEntity)
	}

	times, err := c.deps.Sun.GetSunEventTimes(date)
	if err != nil {
		return c.handleError(ctx, err, http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, times)
}
