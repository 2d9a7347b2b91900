package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
)

func TestInitDisabledByDefault(t *testing.T) {
	settings := &conf.Settings{}
	assert.NoError(t, Init(settings))
	assert.False(t, Enabled())
}

func TestInitEnabledWithoutDSN(t *testing.T) {
	settings := &conf.Settings{}
	settings.Sentry.Enabled = true
	assert.Error(t, Init(settings))
	assert.False(t, Enabled())
}

func TestCaptureNoopsWhenDisabled(t *testing.T) {
	// Must not panic without an initialized client.
	CaptureError(errors.NewStd("boom"), "test")
	CaptureError(nil, "test")
	CaptureMessage("hello", "test")
	Flush(time.Millisecond)
}
