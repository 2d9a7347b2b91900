package weather

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
)

const (
	YrNoBaseURL    = "https://api.met.no/weatherapi/locationforecast/2.0/complete"
	yrNoUserAgent  = "BirdNET-Pi https://github.com/mverteuil/BirdNET-Pi-sub000"
	yrNoMaxRetries = 3
	yrNoRetryDelay = 2 * time.Second
)

// YrNoProvider fetches conditions from the met.no location forecast
// API. No API key is required; the terms of service demand an
// identifying User-Agent.
type YrNoProvider struct {
	baseURL string
}

// NewYrNoProvider creates the yr.no provider.
func NewYrNoProvider() *YrNoProvider {
	return &YrNoProvider{baseURL: YrNoBaseURL}
}

// Name implements Provider.
func (p *YrNoProvider) Name() string { return "yrno" }

// yrResponse is the subset of the yr.no response the service consumes.
type yrResponse struct {
	Properties struct {
		Timeseries []struct {
			Time time.Time `json:"time"`
			Data struct {
				Instant struct {
					Details struct {
						AirPressure    float64 `json:"air_pressure_at_sea_level"`
						AirTemperature float64 `json:"air_temperature"`
						CloudArea      float64 `json:"cloud_area_fraction"`
						RelHumidity    float64 `json:"relative_humidity"`
						WindSpeed      float64 `json:"wind_speed"`
						WindDirection  float64 `json:"wind_from_direction"`
					} `json:"details"`
				} `json:"instant"`
				Next1Hours struct {
					Summary struct {
						SymbolCode string `json:"symbol_code"`
					} `json:"summary"`
					Details struct {
						PrecipitationAmount float64 `json:"precipitation_amount"`
					} `json:"details"`
				} `json:"next_1_hours"`
			} `json:"data"`
		} `json:"timeseries"`
	} `json:"properties"`
}

// FetchWeather implements Provider.
func (p *YrNoProvider) FetchWeather(settings *conf.Settings) (*Data, error) {
	url := fmt.Sprintf("%s?lat=%.6f&lon=%.6f", p.baseURL,
		settings.BirdNET.Latitude,
		settings.BirdNET.Longitude)

	req, err := http.NewRequest(http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", yrNoUserAgent)

	var response yrResponse
	for i := 0; i < yrNoMaxRetries; i++ {
		resp, err := httpClient.Do(req)
		if err != nil {
			if i == yrNoMaxRetries-1 {
				return nil, fmt.Errorf("error fetching weather data: %w", err)
			}
			time.Sleep(yrNoRetryDelay)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("error reading response body: %w", readErr)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("received non-200 response: %d", resp.StatusCode)
		}
		if err := json.Unmarshal(body, &response); err != nil {
			return nil, fmt.Errorf("error unmarshaling weather data: %w", err)
		}
		break
	}

	if len(response.Properties.Timeseries) == 0 {
		return nil, fmt.Errorf("no weather data available")
	}
	current := response.Properties.Timeseries[0]

	return &Data{
		Time:          current.Time,
		Temperature:   current.Data.Instant.Details.AirTemperature,
		Humidity:      current.Data.Instant.Details.RelHumidity,
		Pressure:      current.Data.Instant.Details.AirPressure,
		WindSpeed:     current.Data.Instant.Details.WindSpeed,
		WindDeg:       current.Data.Instant.Details.WindDirection,
		Precipitation: current.Data.Next1Hours.Details.PrecipitationAmount,
		Clouds:        int(current.Data.Instant.Details.CloudArea),
		Description:   current.Data.Next1Hours.Summary.SymbolCode,
	}, nil
}
