package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// storageResponse combines database clip aggregates with filesystem
// usage of the export root.
type storageResponse struct {
	ClipCount            int     `json:"clip_count"`
	TotalBytes           int64   `json:"total_bytes"`
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
	DiskTotalBytes       uint64  `json:"disk_total_bytes,omitempty"`
	DiskUsedBytes        uint64  `json:"disk_used_bytes,omitempty"`
	DiskUsedPercent      float64 `json:"disk_used_percent,omitempty"`
}

// SystemStorage reports clip storage metrics and disk usage of the
// export volume.
func (c *Controller) SystemStorage(ctx echo.Context) error {
	metrics, err := c.deps.Store.GetStorageMetrics()
	if err != nil {
		return c.handleError(ctx, err, http.StatusInternalServerError)
	}

	response := storageResponse{
		ClipCount:            metrics.ClipCount,
		TotalBytes:           metrics.TotalBytes,
		TotalDurationSeconds: metrics.TotalDurationSeconds,
	}
	// Disk usage is best effort; the export root may not exist yet.
	if usage, derr := disk.Usage(c.settings.ClipExportPath()); derr == nil {
		response.DiskTotalBytes = usage.Total
		response.DiskUsedBytes = usage.Used
		response.DiskUsedPercent = usage.UsedPercent
	}
	return ctx.JSON(http.StatusOK, response)
}

// systemInfoResponse describes the host the station runs on.
type systemInfoResponse struct {
	Version       string  `json:"version"`
	GoVersion     string  `json:"go_version"`
	OS            string  `json:"os"`
	Platform      string  `json:"platform"`
	KernelVersion string  `json:"kernel_version,omitempty"`
	Hostname      string  `json:"hostname,omitempty"`
	UptimeSeconds uint64  `json:"uptime_seconds,omitempty"`
	NumCPU        int     `json:"num_cpu"`
	MemoryTotal   uint64  `json:"memory_total_bytes,omitempty"`
	MemoryUsedPct float64 `json:"memory_used_percent,omitempty"`
}

// SystemInfo reports build and host information.
func (c *Controller) SystemInfo(ctx echo.Context) error {
	response := systemInfoResponse{
		Version:   c.settings.Version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		NumCPU:    runtime.NumCPU(),
	}
	if info, err := host.Info(); err == nil {
		response.Platform = info.Platform
		response.KernelVersion = info.KernelVersion
		response.Hostname = info.Hostname
		response.UptimeSeconds = info.Uptime
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		response.MemoryTotal = vm.Total
		response.MemoryUsedPct = vm.UsedPercent
	}
	return ctx.JSON(http.StatusOK, response)
}

// healthResponse is the liveness probe body.
type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	RetryBuffered int    `json:"retry_buffered"`
}

// Health reports process liveness and the retry buffer depth.
func (c *Controller) Health(ctx echo.Context) error {
	response := healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(c.started).Seconds()),
	}
	if c.deps.Ingest != nil {
		response.RetryBuffered = c.deps.Ingest.Buffer().Len()
	}
	return ctx.JSON(http.StatusOK, response)
}
