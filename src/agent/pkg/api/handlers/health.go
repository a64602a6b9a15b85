// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package handlers

import (
	"net/http"
	"time"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/api/models"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/dataplane"
	"github.com/gin-gonic/gin"
)

// Version is reported by the status endpoint; set at link time.
var Version = "0.1.0"

var startTime = time.Now()

// HealthHandler handles health check requests
type HealthHandler struct {
	dataPlane dataplane.DataPlaneInterface
	state     StateReader
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(dp dataplane.DataPlaneInterface, state StateReader) *HealthHandler {
	return &HealthHandler{
		dataPlane: dp,
		state:     state,
	}
}

// GetHealth handles GET /api/v1/health
// Simple health check endpoint
func (h *HealthHandler) GetHealth(c *gin.Context) {
	response := models.HealthResponse{
		Status:  "ok",
		Message: "API server is healthy",
	}

	c.JSON(http.StatusOK, response)
}

// GetStatus handles GET /api/v1/status
// Detailed status endpoint with reconciler and backend information
func (h *HealthHandler) GetStatus(c *gin.Context) {
	stats := statisticsResponse(h.dataPlane.GetStatistics())

	response := models.StatusResponse{
		Status:  "ok",
		Version: Version,
		Reconciler: models.ReconcilerStatus{
			Status:  "running",
			Message: "Reconciler is operational",
		},
		API: models.APIStatus{
			Status:  "running",
			Message: "API server is operational",
		},
		Statistics: &stats,
		Uptime:     int64(time.Since(startTime).Seconds()),
	}

	status, err := h.state.Status(c.Request.Context())
	if err != nil {
		response.Status = "degraded"
		response.Reconciler = models.ReconcilerStatus{
			Status:  "stopped",
			Message: err.Error(),
		}
	} else {
		response.Purge = status.Purge.String()
		response.Interfaces = status.Interfaces
		response.Clients = status.Clients
		response.InterfacePolicies = status.InterfacePolicies
		response.ClientPolicies = status.ClientPolicies
	}

	c.JSON(http.StatusOK, response)
}
