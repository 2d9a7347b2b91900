package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 30 * time.Second

// StreamDetections serves the live detection feed over Server-Sent
// Events. Each accepted detection becomes a "detection" event; a
// heartbeat event is sent every 30 seconds.
func (c *Controller) StreamDetections(ctx echo.Context) error {
	if c.deps.Bus == nil {
		return ctx.JSON(http.StatusServiceUnavailable, errorResponse{Error: "live detection stream unavailable"})
	}

	response := ctx.Response()
	response.Header().Set(echo.HeaderContentType, "text/event-stream")
	response.Header().Set("Cache-Control", "no-cache")
	response.Header().Set("Connection", "keep-alive")
	response.WriteHeader(http.StatusOK)
	response.Flush()

	sub := c.deps.Bus.Subscribe()
	defer sub.Cancel()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	writeEvent := func(event string, payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(response, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		response.Flush()
		return nil
	}

	for {
		select {
		case <-ctx.Request().Context().Done():
			return nil
		case <-sub.Done():
			return nil
		case detected := <-sub.C:
			payload := toDetectionResponse(&datastore.DetectionEnvelope{Detection: detected})
			if err := writeEvent("detection", payload); err != nil {
				return nil
			}
		case <-heartbeat.C:
			payload := map[string]string{"timestamp": utcTimestamp(time.Now())}
			if err := writeEvent("heartbeat", payload); err != nil {
				return nil
			}
		}
	}
}
