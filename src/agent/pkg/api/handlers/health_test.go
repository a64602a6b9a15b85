// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/api/models"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/reconciler"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHealthRouter(state StateReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	handler := NewHealthHandler(NewMockDataPlane(), state)
	router.GET("/api/v1/health", handler.GetHealth)
	router.GET("/api/v1/status", handler.GetStatus)

	return router
}

func TestGetHealth(t *testing.T) {
	router := setupHealthRouter(new(MockStateReader))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var response models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestGetStatus(t *testing.T) {
	state := new(MockStateReader)
	state.On("Status").Return(reconciler.Status{
		Purge:             reconciler.PurgeDone,
		Interfaces:        2,
		Clients:           5,
		InterfacePolicies: 1,
		ClientPolicies:    3,
	}, nil)
	router := setupHealthRouter(state)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var response models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, Version, response.Version)
	assert.Equal(t, "running", response.Reconciler.Status)
	assert.Equal(t, "done", response.Purge)
	assert.Equal(t, 2, response.Interfaces)
	assert.Equal(t, 5, response.Clients)
	assert.Equal(t, 1, response.InterfacePolicies)
	assert.Equal(t, 3, response.ClientPolicies)
	require.NotNil(t, response.Statistics)
	assert.Equal(t, uint64(20), response.Statistics.Total)
	assert.GreaterOrEqual(t, response.Uptime, int64(0))
}

func TestGetStatus_ReconcilerStopped(t *testing.T) {
	state := new(MockStateReader)
	state.On("Status").Return(reconciler.Status{}, reconciler.ErrNotRunning)
	router := setupHealthRouter(state)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var response models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "degraded", response.Status)
	assert.Equal(t, "stopped", response.Reconciler.Status)
}
