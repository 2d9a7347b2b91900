package analysis

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/api"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/backup"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/backup/sources"
	backuptargets "github.com/mverteuil/BirdNET-Pi-sub000/internal/backup/targets"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/birdnet"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/detection"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/diskmanager"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/ebird"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/events"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/imageprovider"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/ingest"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/mqtt"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/myaudio"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/notification"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/observability"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/suncalc"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/telemetry"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/weather"
)

const (
	defaultFlushInterval = 30 * time.Second
	shutdownTimeout      = 10 * time.Second
	busBufferSize        = 64
)

// RunRealtime assembles and runs the full station: audio capture,
// classification, ingest, weather polling, retention, backups,
// notifications, MQTT and the HTTP API. It blocks until SIGINT or
// SIGTERM.
func RunRealtime(settings *conf.Settings) error {
	logger := getLogger()

	if err := telemetry.Init(settings); err != nil {
		logger.Warn("Error telemetry disabled", "error", err)
	}
	defer telemetry.Flush(2 * time.Second)

	store := datastore.New(settings)
	if store == nil {
		return errors.Newf("no detection store configured, enable sqlite or mysql output").
			Component("analysis").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	engine := datastore.NewEnrichedQueryEngine(store,
		datastore.NewAttachManager(datastore.ReferenceSpecs(settings)...),
		settings.Main.Language)

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	bus := detection.NewBus(busBufferSize)
	notifications := notification.NewService(notification.DefaultServiceConfig())
	defer notifications.Stop()
	consumer := notification.NewDetectionConsumer(settings, engine, notifications)

	// Route enhanced errors through the async event bus into the
	// notification center and, when enabled, Sentry.
	if eventBus, berr := events.Initialize(events.DefaultConfig()); berr != nil {
		logger.Warn("Error event bus unavailable", "error", berr)
	} else {
		_ = eventBus.RegisterConsumer(notification.NewErrorEventConsumer(notifications))
		_ = eventBus.RegisterConsumer(telemetry.NewErrorEventConsumer())
		events.InitializeErrorsIntegration()
		defer func() { _ = eventBus.Shutdown(2 * time.Second) }()
	}

	var filter ingest.RegionalFilter
	if settings.Realtime.EBird.Enabled {
		ebirdFilter, ferr := ebird.New(settings.Realtime.EBird, store)
		if ferr != nil {
			logger.Error("Regional filter unavailable, admitting all detections", "error", ferr)
		} else {
			defer ebirdFilter.Close()
			filter = ebirdFilter
		}
	}

	buffer := ingest.NewRetryBuffer(settings.Realtime.Ingest.BufferMaxSize)
	ingestService := ingest.New(settings, store, buffer, filter, bus, consumer)

	flushInterval := time.Duration(settings.Realtime.Ingest.FlushInterval) * time.Second
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	flusher := ingest.NewFlusher(ingestService, flushInterval)
	flusher.Start()
	defer flusher.Stop()

	weatherService, err := weather.NewService(settings, store)
	if err != nil {
		logger.Warn("Weather polling disabled", "error", err)
	}
	if weatherService != nil {
		weatherService.StartPolling()
		defer weatherService.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if settings.Realtime.MQTT.Enabled {
		if publisher := mqtt.NewPublisher(settings, mqtt.NewClient(settings), bus); publisher != nil {
			publisher.Start(ctx)
			defer publisher.Stop()
		}
	}

	if janitor := diskmanager.NewJanitor(settings); janitor != nil {
		janitor.Start()
		defer janitor.Stop()
	}

	if scheduler := buildBackupScheduler(settings, store, logger); scheduler != nil {
		scheduler.Start()
		defer scheduler.Stop()
	}

	controller := api.New(settings, api.Dependencies{
		Store:         store,
		Engine:        engine,
		Ingest:        ingestService,
		Bus:           bus,
		Images:        imageprovider.NewCache(imageprovider.NewWikimediaProvider(settings.Version)),
		Sun:           suncalc.New(settings.BirdNET.Latitude, settings.BirdNET.Longitude, settings.Location()),
		Notifications: notifications,
		Metrics:       metrics,
	})
	if settings.WebServer.Enabled {
		go func() {
			if serr := controller.Start(); serr != nil {
				logger.Error("API server stopped", "error", serr)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			_ = controller.Shutdown(shutdownCtx)
		}()
	}

	classifier, err := birdnet.NewBirdNET(settings)
	if err != nil {
		return err
	}
	defer classifier.Delete()

	analyzer := NewAnalyzer(settings, classifier, ingestService, metrics)
	defer analyzer.Stop()

	var captureWG sync.WaitGroup
	quitChan := make(chan struct{})
	if settings.Realtime.Audio.Source != "" {
		if err := startCapture(settings, analyzer, &captureWG, quitChan, logger); err != nil {
			close(quitChan)
			return err
		}
	} else {
		logger.Info("No audio source configured, running without local capture")
	}

	logger.Info("Station running",
		"node", settings.Main.Name,
		"api_enabled", settings.WebServer.Enabled,
		"capture", settings.Realtime.Audio.Source != "")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutting down", "signal", sig.String())

	close(quitChan)
	captureWG.Wait()
	return nil
}

// startCapture allocates the analysis buffer and starts the capture and
// analyzer goroutines.
func startCapture(settings *conf.Settings, analyzer *Analyzer, wg *sync.WaitGroup, quitChan chan struct{}, logger *slog.Logger) error {
	sampleRate := settings.Realtime.Audio.SampleRate
	if sampleRate <= 0 {
		sampleRate = conf.ModelSampleRate
	}
	channels := settings.Realtime.Audio.Channels
	if channels <= 0 {
		channels = 1
	}
	windowSeconds := settings.Realtime.Audio.BufferSizeSeconds
	if windowSeconds <= 0 {
		windowSeconds = conf.CaptureLength
	}

	buf, err := myaudio.NewAnalysisBuffer(sampleRate, channels, windowSeconds)
	if err != nil {
		return err
	}

	// The level channel is drained so a slow consumer can never block
	// the capture callback.
	audioLevelChan := make(chan myaudio.AudioLevelData, 16)
	go func() {
		for range audioLevelChan {
		}
	}()

	restartChan := make(chan struct{})
	wg.Add(1)
	go myaudio.CaptureAudio(settings, buf, wg, quitChan, restartChan, audioLevelChan)

	analyzer.Run(buf)
	logger.Info("Audio capture started", "source", settings.Realtime.Audio.Source, "sample_rate", sampleRate)
	return nil
}

// buildBackupScheduler assembles the backup manager from the enabled
// targets. Returns nil when backups are disabled or no target is
// configured.
func buildBackupScheduler(settings *conf.Settings, store datastore.Interface, logger *slog.Logger) *backup.Scheduler {
	if !settings.Backup.Enabled {
		return nil
	}

	var targets []backup.Target
	if settings.Backup.Local.Enabled {
		targets = append(targets, backuptargets.NewLocalTarget(settings))
	}
	if settings.Backup.FTP.Enabled {
		targets = append(targets, backuptargets.NewFTPTarget(settings))
	}
	if settings.Backup.SFTP.Enabled {
		targets = append(targets, backuptargets.NewSFTPTarget(settings))
	}
	if settings.Backup.GDrive.Enabled {
		targets = append(targets, backuptargets.NewGDriveTarget(settings))
	}
	if len(targets) == 0 {
		logger.Warn("Backups enabled but no target configured")
		return nil
	}

	manager, err := backup.NewManager(sources.NewSQLiteSource(store), targets...)
	if err != nil {
		logger.Error("Backup manager unavailable", "error", err)
		return nil
	}
	return backup.NewScheduler(settings, manager)
}
