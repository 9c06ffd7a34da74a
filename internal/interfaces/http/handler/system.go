package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jerson21/santitelas-frontend-sub003/internal/interfaces/http/dto"
)

// StatusReporter is the part of the sync client health checks need
type StatusReporter interface {
	Ready() bool
}

// SystemHandler serves health and build information
type SystemHandler struct {
	BaseHandler
	name      string
	version   string
	reporter  StatusReporter
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(name, version string, reporter StatusReporter) *SystemHandler {
	return &SystemHandler{
		name:      name,
		version:   version,
		reporter:  reporter,
		startTime: time.Now(),
	}
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// Health always answers 200 while the process runs. A session without push
// connectivity is reported as degraded since the poll fallback keeps the
// list fresh.
func (h *SystemHandler) Health(c *gin.Context) {
	status := "healthy"
	ready := h.reporter != nil && h.reporter.Ready()
	if !ready {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"push":   ready,
		"time":   time.Now().Format(time.RFC3339),
	})
}

// GetSystemInfo returns basic build and uptime information
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(SystemInfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}))
}
