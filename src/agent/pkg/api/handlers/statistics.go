// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package handlers

import (
	"net/http"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/api/models"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/dataplane"
	"github.com/gin-gonic/gin"
)

// StatisticsHandler handles backend statistics requests
type StatisticsHandler struct {
	dataPlane dataplane.DataPlaneInterface
}

// NewStatisticsHandler creates a new statistics handler
func NewStatisticsHandler(dp dataplane.DataPlaneInterface) *StatisticsHandler {
	return &StatisticsHandler{
		dataPlane: dp,
	}
}

func statisticsResponse(stats dataplane.Statistics) models.StatisticsResponse {
	total := stats.Total()

	var failureRate float64
	if total > 0 {
		failureRate = float64(stats.Failures) / float64(total) * 100
	}

	return models.StatisticsResponse{
		InterfaceSets:    stats.InterfaceSets,
		InterfaceRemoves: stats.InterfaceRemoves,
		ClientSets:       stats.ClientSets,
		ClientRemoves:    stats.ClientRemoves,
		Failures:         stats.Failures,
		Total:            total,
		FailureRate:      failureRate,
	}
}

// GetStats handles GET /api/v1/stats
func (h *StatisticsHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, statisticsResponse(h.dataPlane.GetStatistics()))
}
