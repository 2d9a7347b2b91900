// Package weather polls an external weather provider and persists
// hourly observations keyed by hour epoch, so detections in the same
// hour can be joined against the conditions they were made under.
package weather

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/logging"
)

func getLogger() *slog.Logger {
	if logger := logging.ForService("weather"); logger != nil {
		return logger
	}
	return slog.Default()
}

// Provider fetches the current conditions for the station coordinates.
type Provider interface {
	// Name identifies the provider in logs and stored rows.
	Name() string
	FetchWeather(settings *conf.Settings) (*Data, error)
}

// Data is the provider-independent shape of one observation.
type Data struct {
	Time          time.Time
	Temperature   float64 // degrees Celsius
	Humidity      float64 // percent
	Pressure      float64 // hPa
	WindSpeed     float64 // m/s
	WindDeg       float64
	Precipitation float64 // mm expected over the next hour
	Clouds        int     // percent cover
	Description   string
}

// Service polls the configured provider and stores hourly rows.
type Service struct {
	provider Provider
	db       datastore.Interface
	settings *conf.Settings
	logger   *slog.Logger

	wg       sync.WaitGroup
	quitChan chan struct{}
	stopOnce sync.Once
}

// NewService selects the provider named in the settings. Provider
// "none" or an empty string disables polling and returns a nil service.
func NewService(settings *conf.Settings, db datastore.Interface) (*Service, error) {
	var provider Provider
	switch settings.Realtime.Weather.Provider {
	case "", "none":
		return nil, nil
	case "yrno":
		provider = NewYrNoProvider()
	case "openweather":
		provider = NewOpenWeatherProvider()
	default:
		return nil, errors.Newf("invalid weather provider: %s", settings.Realtime.Weather.Provider).
			Component("weather").
			Category(errors.CategoryConfiguration).
			Context("provider", settings.Realtime.Weather.Provider).
			Build()
	}

	return &Service{
		provider: provider,
		db:       db,
		settings: settings,
		logger:   getLogger(),
		quitChan: make(chan struct{}),
	}, nil
}

// Provider returns the selected provider.
func (s *Service) Provider() Provider {
	return s.provider
}

// StartPolling fetches immediately and then on the configured interval
// until Stop is called.
func (s *Service) StartPolling() {
	interval := time.Duration(s.settings.Realtime.Weather.PollInterval) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	s.logger.Info("Starting weather polling",
		"provider", s.provider.Name(),
		"interval", interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		if err := s.FetchAndSave(); err != nil {
			s.logger.Warn("Initial weather fetch failed", "error", err)
		}
		for {
			select {
			case <-ticker.C:
				if err := s.FetchAndSave(); err != nil {
					s.logger.Warn("Weather poll failed", "error", err)
				}
			case <-s.quitChan:
				return
			}
		}
	}()
}

// Stop terminates the poll loop and waits for it to exit.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.quitChan) })
	s.wg.Wait()
}

// FetchAndSave runs one poll cycle.
func (s *Service) FetchAndSave() error {
	data, err := s.provider.FetchWeather(s.settings)
	if err != nil {
		return errors.New(err).
			Component("weather").
			Category(errors.CategoryNetwork).
			Context("operation", "fetch_weather").
			Context("provider", s.provider.Name()).
			Build()
	}

	if err := s.Save(data); err != nil {
		return err
	}

	s.logger.Debug("Saved weather observation",
		"provider", s.provider.Name(),
		"time", data.Time.UTC().Format(time.RFC3339),
		"temp_c", data.Temperature,
		"wind_mps", data.WindSpeed,
		"humidity_pct", data.Humidity)
	return nil
}

// Save validates and upserts one observation into its hour slot.
// Re-polling within the same hour overwrites the previous row, keeping
// one observation per hour epoch.
func (s *Service) Save(data *Data) error {
	if err := validate(data); err != nil {
		return err
	}

	row := &datastore.HourlyWeather{
		HourEpoch:     data.Time.Unix() / 3600,
		Time:          data.Time.UTC(),
		Temperature:   data.Temperature,
		Humidity:      data.Humidity,
		Pressure:      data.Pressure,
		WindSpeed:     data.WindSpeed,
		WindDeg:       data.WindDeg,
		Precipitation: data.Precipitation,
		Clouds:        data.Clouds,
		Provider:      s.provider.Name(),
		Description:   data.Description,
	}
	return s.db.SaveHourlyWeather(row)
}

func validate(data *Data) error {
	if data == nil {
		return errors.Newf("weather data is nil").
			Component("weather").
			Category(errors.CategoryValidation).
			Build()
	}
	if data.Temperature < -273.15 {
		return errors.Newf("temperature cannot be below absolute zero: %f", data.Temperature).
			Component("weather").
			Category(errors.CategoryValidation).
			Context("temperature", fmt.Sprintf("%.2f", data.Temperature)).
			Build()
	}
	if data.WindSpeed < 0 {
		return errors.Newf("wind speed cannot be negative: %f", data.WindSpeed).
			Component("weather").
			Category(errors.CategoryValidation).
			Context("wind_speed", fmt.Sprintf("%.2f", data.WindSpeed)).
			Build()
	}
	return nil
}

// httpClient is shared by the providers; tests swap its transport.
var httpClient = &http.Client{Timeout: 10 * time.Second}
