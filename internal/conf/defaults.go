// defaults.go: viper defaults for every recognized option.
package conf

import (
	"github.com/spf13/viper"
)

// setDefaultConfig sets the default configuration values.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "BirdNET-Pi")
	viper.SetDefault("main.timeas24h", true)
	viper.SetDefault("main.dataroot", "data")
	viper.SetDefault("main.language", "en")
	viper.SetDefault("main.timezone", "")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "birdnet.log")
	viper.SetDefault("main.log.maxsizemb", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxagedays", 28)

	viper.SetDefault("birdnet.debug", false)
	viper.SetDefault("birdnet.sensitivity", 1.0)
	viper.SetDefault("birdnet.threshold", 0.8)
	viper.SetDefault("birdnet.overlap", 0.0)
	viper.SetDefault("birdnet.threads", 0)
	viper.SetDefault("birdnet.locale", "en")
	viper.SetDefault("birdnet.latitude", 0.000)
	viper.SetDefault("birdnet.longitude", 0.000)
	viper.SetDefault("birdnet.usexnnpack", true)

	viper.SetDefault("realtime.interval", 15)
	viper.SetDefault("realtime.processingtime", false)

	viper.SetDefault("realtime.audio.source", "sysdefault")
	viper.SetDefault("realtime.audio.samplerate", 48000)
	viper.SetDefault("realtime.audio.channels", 1)
	viper.SetDefault("realtime.audio.buffersizeseconds", 3)
	viper.SetDefault("realtime.audio.export.enabled", true)
	viper.SetDefault("realtime.audio.export.path", "")
	viper.SetDefault("realtime.audio.export.type", "wav")
	viper.SetDefault("realtime.audio.export.retention.policy", "usage")
	viper.SetDefault("realtime.audio.export.retention.maxage", "30d")
	viper.SetDefault("realtime.audio.export.retention.maxusage", "80%")
	viper.SetDefault("realtime.audio.export.retention.minclips", 10)

	viper.SetDefault("realtime.ingest.buffermaxsize", 100)
	viper.SetDefault("realtime.ingest.flushinterval", 5)
	viper.SetDefault("realtime.ingest.remoteurl", "")
	viper.SetDefault("realtime.ingest.requesttimeout", 30)

	viper.SetDefault("realtime.ebird.enabled", false)
	viper.SetDefault("realtime.ebird.detectionmode", "off")
	viper.SetDefault("realtime.ebird.strictness", "vagrant")
	viper.SetDefault("realtime.ebird.h3resolution", 5)
	viper.SetDefault("realtime.ebird.unknownspecies", "allow")
	viper.SetDefault("realtime.ebird.packroot", "")

	viper.SetDefault("realtime.weather.provider", "none")
	viper.SetDefault("realtime.weather.pollinterval", 60)
	viper.SetDefault("realtime.weather.debug", false)
	viper.SetDefault("realtime.weather.openweather.apikey", "")
	viper.SetDefault("realtime.weather.openweather.endpoint", "https://api.openweathermap.org/data/2.5/weather")
	viper.SetDefault("realtime.weather.openweather.units", "metric")
	viper.SetDefault("realtime.weather.openweather.language", "en")

	viper.SetDefault("realtime.mqtt.enabled", false)
	viper.SetDefault("realtime.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("realtime.mqtt.topic", "birdnet/detections")
	viper.SetDefault("realtime.mqtt.username", "")
	viper.SetDefault("realtime.mqtt.password", "")
	viper.SetDefault("realtime.mqtt.retain", false)

	viper.SetDefault("realtime.telemetry.enabled", false)
	viper.SetDefault("realtime.telemetry.listen", "0.0.0.0:8090")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.debug", false)

	viper.SetDefault("references.ioc", "")
	viper.SetDefault("references.patlevin", "")
	viper.SetDefault("references.avibase", "")

	viper.SetDefault("notification.enabled", true)
	viper.SetDefault("notification.rules", []map[string]any{})
	viper.SetDefault("notification.quiethours.start", "")
	viper.SetDefault("notification.quiethours.end", "")

	viper.SetDefault("backup.enabled", false)
	viper.SetDefault("backup.debug", false)
	viper.SetDefault("backup.schedule", "03:00")
	viper.SetDefault("backup.local.enabled", true)
	viper.SetDefault("backup.local.path", "")
	viper.SetDefault("backup.local.keep", 7)
	viper.SetDefault("backup.ftp.enabled", false)
	viper.SetDefault("backup.ftp.port", 21)
	viper.SetDefault("backup.sftp.enabled", false)
	viper.SetDefault("backup.sftp.port", 22)
	viper.SetDefault("backup.gdrive.enabled", false)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "birdnet")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.database", "birdnet")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
}
