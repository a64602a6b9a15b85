// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/api/models"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/dataplane"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStatsRouter(dp dataplane.DataPlaneInterface) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	handler := NewStatisticsHandler(dp)
	router.GET("/api/v1/stats", handler.GetStats)

	return router
}

func TestGetStats(t *testing.T) {
	router := setupStatsRouter(NewMockDataPlane())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var response models.StatisticsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

	assert.Equal(t, uint64(4), response.InterfaceSets)
	assert.Equal(t, uint64(1), response.InterfaceRemoves)
	assert.Equal(t, uint64(12), response.ClientSets)
	assert.Equal(t, uint64(3), response.ClientRemoves)
	assert.Equal(t, uint64(20), response.Total)
	assert.InDelta(t, 10.0, response.FailureRate, 0.001)
}

func TestGetStats_Empty(t *testing.T) {
	dp := NewMockDataPlane()
	dp.SetStatistics(dataplane.Statistics{})
	router := setupStatsRouter(dp)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	var response models.StatisticsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Zero(t, response.Total)
	assert.Zero(t, response.FailureRate)
}
