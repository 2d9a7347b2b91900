package diskmanager

import (
	"sync"
	"time"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
)

// defaultInterval is how often the janitor applies the retention
// policy.
const defaultInterval = time.Hour

// Janitor periodically applies the configured retention policy.
type Janitor struct {
	settings *conf.Settings
	interval time.Duration
	quit     chan struct{}
	wg       sync.WaitGroup
}

// NewJanitor creates a janitor. Returns nil when the retention policy
// is "none" or unset, or when clip export is disabled.
func NewJanitor(settings *conf.Settings) *Janitor {
	policy := settings.Realtime.Audio.Export.Retention.Policy
	if !settings.Realtime.Audio.Export.Enabled || policy == "" || policy == "none" {
		return nil
	}
	return &Janitor{
		settings: settings,
		interval: defaultInterval,
		quit:     make(chan struct{}),
	}
}

// Start launches the cleanup loop. The first run happens after one
// interval, not at startup, to keep boot fast.
func (j *Janitor) Start() {
	j.wg.Add(1)
	go j.run()
}

// Stop terminates the cleanup loop and waits for a running pass to
// finish.
func (j *Janitor) Stop() {
	close(j.quit)
	j.wg.Wait()
}

func (j *Janitor) run() {
	defer j.wg.Done()

	logger := getLogger()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var err error
			switch j.settings.Realtime.Audio.Export.Retention.Policy {
			case "age":
				_, err = AgeBasedCleanup(j.quit, j.settings)
			case "usage":
				_, err = UsageBasedCleanup(j.quit, j.settings)
			}
			if err != nil {
				logger.Error("Retention cleanup failed",
					"policy", j.settings.Realtime.Audio.Export.Retention.Policy,
					"error", err)
			}
		case <-j.quit:
			return
		}
	}
}
