// conf/validate.go

package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateBirdNETSettings(&settings.BirdNET); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateWebServerSettings(&settings.WebServer); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateRealtimeSettings(&settings.Realtime); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateAudioSettings(&settings.Realtime.Audio); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateIngestSettings(&settings.Realtime.Ingest); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateEBirdSettings(&settings.Realtime.EBird); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateWeatherSettings(&settings.Realtime.Weather); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateMQTTSettings(&settings.Realtime.MQTT); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateNotificationSettings(&settings.Notification); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateBackupSettings(&settings.Backup); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// validateBirdNETSettings validates the BirdNET-specific settings
func validateBirdNETSettings(settings *BirdNETConfig) error {
	var errs []string

	if settings.Sensitivity < 0 || settings.Sensitivity > 1.5 {
		errs = append(errs, "BirdNET sensitivity must be between 0 and 1.5")
	}

	if settings.Threshold < 0 || settings.Threshold > 1 {
		errs = append(errs, "BirdNET threshold must be between 0 and 1")
	}

	if settings.Overlap < 0 || settings.Overlap > 2.99 {
		errs = append(errs, "BirdNET overlap value must be between 0 and 2.99 seconds")
	}

	if settings.Longitude < -180 || settings.Longitude > 180 {
		errs = append(errs, "BirdNET longitude must be between -180 and 180")
	}

	if settings.Latitude < -90 || settings.Latitude > 90 {
		errs = append(errs, "BirdNET latitude must be between -90 and 90")
	}

	if settings.Threads < 0 {
		errs = append(errs, "BirdNET threads must be at least 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("BirdNET settings errors: %v", errs)
	}

	return nil
}

// validateWebServerSettings validates the WebServer-specific settings
func validateWebServerSettings(settings *WebServerSettings) error {
	if settings.Enabled && settings.Port == "" {
		return errors.New("WebServer port is required when enabled")
	}
	return nil
}

// validateRealtimeSettings validates the Realtime-specific settings
func validateRealtimeSettings(settings *RealtimeSettings) error {
	if settings.Interval < 0 {
		return errors.New("Realtime interval must be non-negative")
	}
	return nil
}

// validateAudioSettings validates audio capture settings
func validateAudioSettings(settings *AudioSettings) error {
	var errs []string

	switch settings.SampleRate {
	case 8000, 16000, 22050, 24000, 32000, 44100, 48000:
	default:
		errs = append(errs, fmt.Sprintf("audio sample rate %d is not supported", settings.SampleRate))
	}

	if settings.Channels < 1 || settings.Channels > 2 {
		errs = append(errs, "audio channels must be 1 or 2")
	}

	if settings.BufferSizeSeconds < 1 {
		errs = append(errs, "audio buffer size must be at least 1 second")
	}

	if settings.Export.Enabled {
		switch settings.Export.Type {
		case "wav", "flac":
		default:
			errs = append(errs, fmt.Sprintf("audio export type '%s' is not supported", settings.Export.Type))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("audio settings errors: %v", errs)
	}

	return nil
}

// validateIngestSettings validates the ingest pipeline settings
func validateIngestSettings(settings *IngestSettings) error {
	var errs []string

	if settings.BufferMaxSize < 1 {
		errs = append(errs, "ingest buffer max size must be at least 1")
	}

	if settings.FlushInterval < 1 {
		errs = append(errs, "ingest flush interval must be at least 1 second")
	}

	if len(errs) > 0 {
		return fmt.Errorf("ingest settings errors: %v", errs)
	}

	return nil
}

// validateEBirdSettings validates the regional filter settings
func validateEBirdSettings(settings *EBirdSettings) error {
	var errs []string

	switch settings.DetectionMode {
	case "off", "warn", "filter":
	default:
		errs = append(errs, fmt.Sprintf("ebird detection mode '%s' must be one of off, warn, filter", settings.DetectionMode))
	}

	switch settings.Strictness {
	case "vagrant", "rare", "uncommon", "common":
	default:
		errs = append(errs, fmt.Sprintf("ebird strictness '%s' must be one of vagrant, rare, uncommon, common", settings.Strictness))
	}

	if settings.H3Resolution < 0 || settings.H3Resolution > 15 {
		errs = append(errs, "ebird H3 resolution must be between 0 and 15")
	}

	switch settings.UnknownSpecies {
	case "allow", "block":
	default:
		errs = append(errs, fmt.Sprintf("ebird unknown species behavior '%s' must be allow or block", settings.UnknownSpecies))
	}

	if len(errs) > 0 {
		return fmt.Errorf("ebird settings errors: %v", errs)
	}

	return nil
}

// validateWeatherSettings validates the weather provider settings
func validateWeatherSettings(settings *WeatherSettings) error {
	var errs []string

	switch settings.Provider {
	case "", "none", "yrno", "openweather":
	default:
		errs = append(errs, fmt.Sprintf("weather provider '%s' must be one of none, yrno, openweather", settings.Provider))
	}

	if settings.Provider == "openweather" && settings.OpenWeather.APIKey == "" {
		errs = append(errs, "openweather provider requires an API key")
	}

	if settings.PollInterval < 15 {
		errs = append(errs, "weather poll interval must be at least 15 minutes")
	}

	if len(errs) > 0 {
		return fmt.Errorf("weather settings errors: %v", errs)
	}

	return nil
}

// validateMQTTSettings validates the MQTT publisher settings
func validateMQTTSettings(settings *MQTTSettings) error {
	if !settings.Enabled {
		return nil
	}

	var errs []string

	if settings.Broker == "" {
		errs = append(errs, "MQTT broker URL is required when MQTT is enabled")
	}

	if settings.Topic == "" {
		errs = append(errs, "MQTT topic is required when MQTT is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("MQTT settings errors: %v", errs)
	}

	return nil
}

// validateNotificationSettings validates notification rules and quiet hours
func validateNotificationSettings(settings *NotificationSettings) error {
	var errs []string

	for i := range settings.Rules {
		rule := &settings.Rules[i]

		if rule.Name == "" {
			errs = append(errs, fmt.Sprintf("notification rule %d has no name", i))
		}

		// Unknown frequencies are tolerated, the matcher just never fires them.

		if rule.MinimumConfidence < 0 || rule.MinimumConfidence > 100 {
			errs = append(errs, fmt.Sprintf("notification rule '%s' minimum confidence must be between 0 and 100", rule.Name))
		}

		switch rule.Scope {
		case "", "all", "new_ever", "new_today", "new_this_week":
		default:
			errs = append(errs, fmt.Sprintf("notification rule '%s' has unknown scope '%s'", rule.Name, rule.Scope))
		}
	}

	if err := validateQuietHours(settings.QuietHours.Start, settings.QuietHours.End); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification settings errors: %v", errs)
	}

	return nil
}

// validateQuietHours checks that quiet hours are either both unset or both
// parseable clock times.
func validateQuietHours(start, end string) error {
	if start == "" && end == "" {
		return nil
	}

	if start == "" || end == "" {
		return errors.New("quiet hours require both start and end times")
	}

	for _, v := range []string{start, end} {
		if _, err := ParseClockTime(v); err != nil {
			return fmt.Errorf("invalid quiet hours time '%s': %w", v, err)
		}
	}

	return nil
}

// ParseClockTime parses a wall-clock time in HH:MM or HH:MM:SS form.
func ParseClockTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.TimeOnly, value); err == nil {
		return t, nil
	}
	return time.Parse("15:04", value)
}

// validateBackupSettings validates the backup scheduler settings
func validateBackupSettings(settings *BackupConfig) error {
	if !settings.Enabled {
		return nil
	}

	var errs []string

	if settings.Schedule != "" {
		if _, err := ParseClockTime(settings.Schedule); err != nil {
			errs = append(errs, fmt.Sprintf("invalid backup schedule '%s'", settings.Schedule))
		}
	}

	if settings.FTP.Enabled && settings.FTP.Host == "" {
		errs = append(errs, "FTP backup target requires a host")
	}

	if settings.SFTP.Enabled && settings.SFTP.Host == "" {
		errs = append(errs, "SFTP backup target requires a host")
	}

	if settings.GDrive.Enabled && settings.GDrive.CredentialsPath == "" {
		errs = append(errs, "Google Drive backup target requires a credentials file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("backup settings errors: %v", errs)
	}

	return nil
}
