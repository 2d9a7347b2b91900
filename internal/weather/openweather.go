package weather

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
)

const (
	// DefaultOpenWeatherEndpoint is used when the settings leave the
	// endpoint empty.
	DefaultOpenWeatherEndpoint = "https://api.openweathermap.org/data/2.5/weather"
	openWeatherUserAgent       = "BirdNET-Pi"
)

// OpenWeatherProvider fetches conditions from the OpenWeather current
// weather API. Requires an API key.
type OpenWeatherProvider struct{}

// NewOpenWeatherProvider creates the OpenWeather provider.
func NewOpenWeatherProvider() *OpenWeatherProvider {
	return &OpenWeatherProvider{}
}

// Name implements Provider.
func (p *OpenWeatherProvider) Name() string { return "openweather" }

// openWeatherResponse is the subset of the OpenWeather response the
// service consumes.
type openWeatherResponse struct {
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp     float64 `json:"temp"`
		Pressure float64 `json:"pressure"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Rain struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
	Snow struct {
		OneHour float64 `json:"1h"`
	} `json:"snow"`
	Clouds struct {
		All int `json:"all"`
	} `json:"clouds"`
	Dt int64 `json:"dt"`
}

// FetchWeather implements Provider.
func (p *OpenWeatherProvider) FetchWeather(settings *conf.Settings) (*Data, error) {
	ow := settings.Realtime.Weather.OpenWeather
	if ow.APIKey == "" {
		return nil, fmt.Errorf("OpenWeather API key is not configured")
	}
	endpoint := ow.Endpoint
	if endpoint == "" {
		endpoint = DefaultOpenWeatherEndpoint
	}

	query := url.Values{}
	query.Set("lat", fmt.Sprintf("%f", settings.BirdNET.Latitude))
	query.Set("lon", fmt.Sprintf("%f", settings.BirdNET.Longitude))
	query.Set("appid", ow.APIKey)
	if ow.Units != "" {
		query.Set("units", ow.Units)
	}
	if ow.Language != "" {
		query.Set("lang", ow.Language)
	}

	req, err := http.NewRequest(http.MethodGet, endpoint+"?"+query.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", openWeatherUserAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching weather data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 response: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	var weatherData openWeatherResponse
	if err := json.Unmarshal(body, &weatherData); err != nil {
		return nil, fmt.Errorf("error unmarshaling weather data: %w", err)
	}

	description := ""
	if len(weatherData.Weather) > 0 {
		description = weatherData.Weather[0].Description
	}

	return &Data{
		Time:          time.Unix(weatherData.Dt, 0),
		Temperature:   weatherData.Main.Temp,
		Humidity:      weatherData.Main.Humidity,
		Pressure:      weatherData.Main.Pressure,
		WindSpeed:     weatherData.Wind.Speed,
		WindDeg:       weatherData.Wind.Deg,
		Precipitation: weatherData.Rain.OneHour + weatherData.Snow.OneHour,
		Clouds:        weatherData.Clouds.All,
		Description:   description,
	}, nil
}
