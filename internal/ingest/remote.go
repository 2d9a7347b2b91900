package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/observation"
)

// DefaultRequestTimeout bounds remote collector requests when no
// timeout is configured.
const DefaultRequestTimeout = 30 * time.Second

// maxResponseBytes caps how much of a collector response is read.
const maxResponseBytes = 1 << 20

// RemoteClient posts detection events to a collector's ingest endpoint,
// for deployments where capture and persistence run on different hosts.
type RemoteClient struct {
	url        string
	httpClient *http.Client
}

// NewRemoteClient creates a client for the collector URL.
func NewRemoteClient(url string, timeout time.Duration) *RemoteClient {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &RemoteClient{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Send posts one event and maps the HTTP outcome onto the ingest error
// taxonomy: a 422 is a validation failure that must never be buffered,
// any other non-2xx status and every transport error is retryable.
func (c *RemoteClient) Send(ctx context.Context, event *observation.Event) (Result, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return Result{}, errors.New(err).
			Component("ingest").
			Category(errors.CategoryValidation).
			Context("operation", "remote_send").
			Build()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, errors.New(err).
			Component("ingest").
			Category(errors.CategoryNetwork).
			Context("operation", "remote_send").
			Context("url", c.url).
			Build()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, errors.New(err).
			Component("ingest").
			Category(errors.CategoryNetwork).
			Context("operation", "remote_send").
			Context("url", c.url).
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if readErr != nil {
		return Result{}, errors.New(readErr).
			Component("ingest").
			Category(errors.CategoryNetwork).
			Context("operation", "remote_send").
			Context("status_code", resp.StatusCode).
			Build()
	}

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return Result{}, errors.Newf("collector rejected event: %s", strings.TrimSpace(string(body))).
			Component("ingest").
			Category(errors.CategoryValidation).
			Context("operation", "remote_send").
			Context("status_code", resp.StatusCode).
			Build()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, errors.Newf("collector returned status %d", resp.StatusCode).
			Component("ingest").
			Category(errors.CategoryNetwork).
			Context("operation", "remote_send").
			Context("status_code", resp.StatusCode).
			Build()
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		// A 2xx means the collector took the event; retrying on a
		// malformed body would duplicate the detection.
		getLogger().Warn("Collector response unreadable, assuming accepted",
			"url", c.url,
			"status_code", resp.StatusCode,
			"error", err)
		return Result{Status: StatusAccepted, Message: "collector response unreadable"}, nil
	}
	return result, nil
}
