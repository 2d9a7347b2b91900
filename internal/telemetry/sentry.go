// Package telemetry reports errors to Sentry. Reporting is strictly
// opt-in: without the enabled flag nothing is initialized and every
// capture call is a no-op.
package telemetry

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/logging"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/privacy"
)

var enabled atomic.Bool

func getLogger() *slog.Logger {
	if logger := logging.ForService("telemetry"); logger != nil {
		return logger
	}
	return slog.Default()
}

// Init configures Sentry when error telemetry is enabled in the
// settings. Disabled telemetry returns nil without side effects.
func Init(settings *conf.Settings) error {
	if !settings.Sentry.Enabled {
		getLogger().Debug("Error telemetry disabled")
		return nil
	}
	if settings.Sentry.DSN == "" {
		return errors.Newf("error telemetry enabled but no DSN configured").
			Component("telemetry").
			Category(errors.CategoryValidation).
			Build()
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		Release:          settings.Version,
		AttachStacktrace: true,
		// Strip host-identifying fields and scrub URLs out of message
		// text, only the error content matters.
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			event.ServerName = ""
			event.User = sentry.User{}
			event.Message = privacy.ScrubMessage(event.Message)
			for i := range event.Exception {
				event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
			}
			return event
		},
	})
	if err != nil {
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryNetwork).
			Context("operation", "sentry_init").
			Build()
	}

	enabled.Store(true)
	getLogger().Info("Error telemetry enabled")
	return nil
}

// Enabled reports whether telemetry was initialized.
func Enabled() bool {
	return enabled.Load()
}

// CaptureError reports an error tagged with its component. No-op when
// telemetry is disabled.
func CaptureError(err error, component string) {
	if !enabled.Load() || err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)

		var enhancedErr *errors.EnhancedError
		if errors.As(err, &enhancedErr) {
			scope.SetTag("category", enhancedErr.GetCategory())
			if errCtx := enhancedErr.GetContext(); len(errCtx) > 0 {
				scope.SetContext("error_context", errCtx)
			}
		}
		sentry.CaptureException(err)
	})
}

// CaptureMessage reports an informational message. No-op when telemetry
// is disabled.
func CaptureMessage(message, component string) {
	if !enabled.Load() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		sentry.CaptureMessage(message)
	})
}

// Flush drains pending events before shutdown.
func Flush(timeout time.Duration) {
	if enabled.Load() {
		sentry.Flush(timeout)
	}
}
