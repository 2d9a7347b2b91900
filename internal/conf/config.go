// config.go: settings struct and functions to load and save the settings.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// LogConfig contains settings for a rotated service log file.
type LogConfig struct {
	Enabled    bool   // true to enable this log
	Path       string // path to the log file
	MaxSizeMB  int    // rotate after this many megabytes
	MaxBackups int    // rotated files to keep
	MaxAgeDays int    // days to retain rotated files
}

// BirdNETConfig contains settings for the BirdNET classifier.
type BirdNETConfig struct {
	Debug       bool    // true to enable debug mode
	Sensitivity float64 // sigmoid sensitivity, 0.5 to 1.5
	Threshold   float64 // species confidence threshold for detection admission
	Overlap     float64 // analysis window overlap in seconds, passed through to detections
	Latitude    float64 // default latitude when an event omits coordinates
	Longitude   float64 // default longitude when an event omits coordinates
	Threads     int     // tflite threads, 0 to use performance core count
	Locale      string  // label file locale
	ModelPath   string  // path to the model file, empty for bundled default
	LabelPath   string  // path to the label file, empty for bundled default
	UseXNNPACK  bool    // true to enable XNNPACK delegate
}

// RetentionSettings control cleanup of exported audio clips.
type RetentionSettings struct {
	Policy   string // retention policy, "none", "age" or "usage"
	MaxAge   string // maximum age of audio clips to keep, e.g. "30d"
	MaxUsage string // maximum disk usage percentage before cleanup, e.g. "80%"
	MinClips int    // minimum number of clips per species to keep
}

// AudioSettings contains settings for audio input and clip export.
type AudioSettings struct {
	Source            string // audio capture source, empty to disable device capture
	SampleRate        int    // PCM input rate in Hz
	Channels          int    // input channels, 1 or 2
	BufferSizeSeconds int    // analysis window length in seconds
	Export            struct {
		Enabled   bool              // export audio clips containing identified bird calls
		Path      string            // clip export root, empty for <dataroot>/recordings
		Type      string            // audio file type, wav or flac
		Retention RetentionSettings // clip retention settings
	}
}

// IngestSettings contains settings for the detection ingest path.
type IngestSettings struct {
	BufferMaxSize  int    // retry buffer capacity
	FlushInterval  int    // seconds between retry buffer flush cycles
	RemoteURL      string // when set, detections are posted to this collector URL
	RequestTimeout int    // remote ingest request timeout in seconds
}

// EBirdSettings contains settings for regional occurrence filtering.
type EBirdSettings struct {
	Enabled        bool   // true to enable eBird regional filtering
	DetectionMode  string // "off", "warn" or "filter"
	Strictness     string // highest blocked tier: "vagrant", "rare", "uncommon" or "common"
	H3Resolution   int    // H3 resolution used by installed packs
	UnknownSpecies string // behavior for species missing from the pack, "allow" or "block"
	PackRoot       string // directory containing regional packs and registry.yaml
}

// WeatherSettings contains all weather-related settings
type WeatherSettings struct {
	Provider     string              // "none", "yrno" or "openweather"
	PollInterval int                 // weather data polling interval in minutes
	Debug        bool                // true to enable debug mode
	OpenWeather  OpenWeatherSettings // OpenWeather integration settings
}

// OpenWeatherSettings contains settings for OpenWeather integration.
type OpenWeatherSettings struct {
	APIKey   string // OpenWeather API key
	Endpoint string // OpenWeather API endpoint
	Units    string // units of measurement: standard, metric, or imperial
	Language string // language code for the response
}

// MQTTSettings contains settings for MQTT integration.
type MQTTSettings struct {
	Enabled  bool   // true to enable MQTT
	Broker   string // MQTT broker (tcp://host:port)
	Topic    string // MQTT topic for detection messages
	Username string // MQTT username
	Password string // MQTT password
	Retain   bool   // true to publish with the retain flag
}

// TelemetrySettings contains settings for the Prometheus endpoint.
type TelemetrySettings struct {
	Enabled bool   // true to enable Prometheus compatible telemetry endpoint
	Listen  string // IP address and port to listen on
}

// SentrySettings contains settings for error telemetry.
type SentrySettings struct {
	Enabled bool   // true to enable Sentry error reporting, opt-in
	DSN     string // Sentry DSN, empty uses the project default
}

// RealtimeSettings contains all settings related to realtime processing.
type RealtimeSettings struct {
	Interval       int               // minimum interval between detections of the same species in seconds
	ProcessingTime bool              // true to report processing time for each prediction
	Audio          AudioSettings     // audio input and export settings
	Ingest         IngestSettings    // detection ingest and retry settings
	EBird          EBirdSettings     // eBird regional filter settings
	Weather        WeatherSettings   // weather polling settings
	MQTT           MQTTSettings      // MQTT integration settings
	Telemetry      TelemetrySettings // Prometheus telemetry settings
}

// WebServerSettings contains settings for the HTTP API server.
type WebServerSettings struct {
	Enabled bool   // true to enable the API server
	Port    string // port to listen on
	Debug   bool   // true to enable server debug mode
}

// ReferenceDBSettings holds paths to the read-only reference databases.
// Missing files degrade enrichment instead of failing queries.
type ReferenceDBSettings struct {
	IOC      string // IOC taxonomy and translations database
	PatLevin string // Patrick Levin bird names database
	Avibase  string // Avibase multilingual names database
}

// NotificationRule describes one notification matching rule.
type NotificationRule struct {
	Name              string   // rule name, shown in notifications
	Enabled           bool     // false disables the rule without removing it
	Frequency         string   // "immediate"; other values are ignored by the matcher
	MinimumConfidence float64  // percent 0..100 compared against confidence*100
	Scope             string   // "all", "new_ever", "new_today" or "new_this_week"
	Include           []string // taxa include list, empty matches all
	Exclude           []string // taxa exclude list, takes precedence over include
	Template          string   // message template, empty uses the built-in default
}

// NotificationSettings contains notification rules and quiet hours.
type NotificationSettings struct {
	Enabled    bool               // true to evaluate notification rules
	Rules      []NotificationRule // ordered rule list
	QuietHours struct {
		Start string // HH:MM:SS, may cross midnight
		End   string // HH:MM:SS, start==end disables quiet hours
	}
}

// BackupTargetFTP contains settings for the FTP backup target.
type BackupTargetFTP struct {
	Enabled  bool   // true to upload backups over FTP
	Host     string // FTP server host
	Port     int    // FTP server port
	Username string // FTP username
	Password string // FTP password
	Path     string // remote directory for backups
}

// BackupTargetSFTP contains settings for the SFTP backup target.
type BackupTargetSFTP struct {
	Enabled        bool   // true to upload backups over SFTP
	Host           string // SFTP server host
	Port           int    // SFTP server port
	Username       string // SFTP username
	Password       string // SFTP password, empty to use key auth
	PrivateKeyPath string // path to the SSH private key
	KnownHostsPath string // path to a known_hosts file, empty trusts any host
	Path           string // remote directory for backups
}

// BackupTargetGDrive contains settings for the Google Drive backup target.
type BackupTargetGDrive struct {
	Enabled         bool   // true to upload backups to Google Drive
	CredentialsPath string // path to a service account credentials JSON file
	FolderID        string // destination folder id
}

// BackupTargetLocal contains settings for the local backup target.
type BackupTargetLocal struct {
	Enabled bool   // true to keep local backup copies
	Path    string // local backup directory, empty for <dataroot>/backups
	Keep    int    // number of local backups to keep
}

// BackupConfig contains settings for the backup subsystem.
type BackupConfig struct {
	Enabled  bool               // true to run scheduled backups
	Debug    bool               // true to enable debug mode
	Schedule string             // daily run time, HH:MM
	Local    BackupTargetLocal  // local target settings
	FTP      BackupTargetFTP    // FTP target settings
	SFTP     BackupTargetSFTP   // SFTP target settings
	GDrive   BackupTargetGDrive // Google Drive target settings
}

// SQLiteSettings contains settings for the SQLite detection store.
type SQLiteSettings struct {
	Enabled bool   // true to use SQLite output
	Path    string // path to the detection database, empty for <dataroot>/birds.db
}

// MySQLSettings contains settings for the MySQL detection store.
type MySQLSettings struct {
	Enabled  bool   // true to use MySQL output
	Username string // MySQL username
	Password string // MySQL password
	Database string // MySQL database name
	Host     string // MySQL host
	Port     string // MySQL port
}

// OutputSettings selects the detection store backend.
type OutputSettings struct {
	SQLite SQLiteSettings // SQLite output settings
	MySQL  MySQLSettings  // MySQL output settings
}

// Settings is the root of the configuration tree.
type Settings struct {
	Debug bool // true to enable debug mode

	Version string `yaml:"-" mapstructure:"-"` // build version, set at startup

	Main struct {
		Name      string    // node name, used to identify the source of detections
		TimeAs24h bool      // true for 24-hour time format
		DataRoot  string    // root directory for runtime data: recordings, database, backups
		Language  string    // preferred language code for translated common names
		Timezone  string    // IANA timezone for local-time windows, empty means system local
		Log       LogConfig // main application log settings
	}

	BirdNET BirdNETConfig // BirdNET classifier settings

	Realtime     RealtimeSettings     // realtime pipeline settings
	WebServer    WebServerSettings    // HTTP API settings
	References   ReferenceDBSettings  // reference database paths
	Notification NotificationSettings // notification rules and quiet hours
	Backup       BackupConfig         // backup settings
	Sentry       SentrySettings       // error telemetry settings
	Output       OutputSettings       // detection store settings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new
// Settings instance and stores it as the package instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config to the first
// default config path and loads it.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(getDefaultConfig()), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}
	return string(data)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// SaveSettings saves the current settings to the configuration file.
func SaveSettings() error {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()

	settingsCopy := *settingsInstance

	configPath, err := FindConfigFile()
	if err != nil {
		return fmt.Errorf("error finding config file: %w", err)
	}

	if err := SaveYAMLConfig(configPath, &settingsCopy); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}
	return nil
}

// SaveYAMLConfig updates the YAML configuration file with new settings.
// The write goes through a temporary file so the replace is atomic.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		// Rename can fail across filesystems; fall back to copy and delete.
		if err := moveFile(tempFileName, configPath); err != nil {
			return fmt.Errorf("error copying config file: %w", err)
		}
	}

	return nil
}

// ClipExportPath returns the configured clip export directory, defaulting
// to recordings under the data root.
func (s *Settings) ClipExportPath() string {
	if s.Realtime.Audio.Export.Path != "" {
		return s.Realtime.Audio.Export.Path
	}
	return filepath.Join(s.Main.DataRoot, "recordings")
}

// DatabasePath returns the SQLite database path, defaulting to birds.db
// under the data root.
func (s *Settings) DatabasePath() string {
	if s.Output.SQLite.Path != "" {
		return s.Output.SQLite.Path
	}
	return filepath.Join(s.Main.DataRoot, "birds.db")
}

// BackupLocalPath returns the local backup directory, defaulting to
// backups under the data root.
func (s *Settings) BackupLocalPath() string {
	if s.Backup.Local.Path != "" {
		return s.Backup.Local.Path
	}
	return filepath.Join(s.Main.DataRoot, "backups")
}

// Location returns the IANA timezone configured for local-time windows,
// falling back to the system local zone when unset or unknown.
func (s *Settings) Location() *time.Location {
	if s.Main.Timezone != "" {
		if loc, err := time.LoadLocation(s.Main.Timezone); err == nil {
			return loc
		}
		log.Printf("Unknown timezone %q, using system local time", s.Main.Timezone)
	}
	return time.Local
}

// GetWeatherSettings returns the configured weather provider and its settings.
func (s *Settings) GetWeatherSettings() (provider string, openweather OpenWeatherSettings) {
	if s.Realtime.Weather.Provider != "" {
		return s.Realtime.Weather.Provider, s.Realtime.Weather.OpenWeather
	}
	return "yrno", OpenWeatherSettings{}
}
