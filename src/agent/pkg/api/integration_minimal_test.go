// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/api/models"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/dataplane"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/policy"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/reconciler"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/registry"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/testutil"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	wlan0 = "hostapd.wlan0"
	sta1  = "aa:bb:cc:dd:ee:01"
)

// TestEnv runs a real engine against an in-memory bus behind the router
type TestEnv struct {
	Router *gin.Engine
	Bus    *testutil.FakeBus
	Shaper *testutil.RecordingShaper
	Server *Server
}

// NewTestEnv creates a test environment for API-level integration tests
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	fb := testutil.NewFakeBus()
	fb.SetObject(wlan0, 1)
	fb.SetClients(wlan0, sta1)
	sh := &testutil.RecordingShaper{}
	dp := dataplane.New(sh)

	reg := prometheus.NewRegistry()
	cfg := reconciler.DefaultConfig()
	cfg.Interval = 5 * time.Millisecond
	cfg.Registerer = reg
	engine := reconciler.New(cfg, fb, dp, policy.NewStore(), registry.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- engine.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	apiCfg := DefaultConfig()
	apiCfg.Gatherer = reg
	apiCfg.Settings = &models.ConfigResponse{Interval: "5ms", Backend: "dry-run"}
	server, err := NewAPIServer(apiCfg, dp, engine)
	require.NoError(t, err)

	return &TestEnv{
		Router: server.GetRouter(),
		Bus:    fb,
		Shaper: sh,
		Server: server,
	}
}

func performRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func (env *TestEnv) hasCall(want string) func() bool {
	return func() bool {
		for _, s := range env.Shaper.Strings() {
			if s == want {
				return true
			}
		}
		return false
	}
}

func TestIntegration_API_Health(t *testing.T) {
	env := NewTestEnv(t)

	w := performRequest(env.Router, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var response models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestIntegration_PolicyToShaping(t *testing.T) {
	env := NewTestEnv(t)

	w := performRequest(env.Router, http.MethodPut, "/api/v1/policies/interfaces",
		`{"interface":"","down":20480,"up":10240}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = performRequest(env.Router, http.MethodPut, "/api/v1/policies/clients",
		`{"interface":"wlan0","down":8192,"up":3072}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Eventually(t, env.hasCall("interface_set wlan0 20480 10240"), time.Second, time.Millisecond)
	assert.Eventually(t, env.hasCall("client_set 10 wlan0 "+sta1+" 8192 3072"), time.Second, time.Millisecond)

	// the live state reflects the applied policy
	require.Eventually(t, func() bool {
		w := performRequest(env.Router, http.MethodGet, "/api/v1/clients?interface=wlan0", "")
		var clients models.ClientListResponse
		if json.Unmarshal(w.Body.Bytes(), &clients) != nil || clients.Count != 1 {
			return false
		}
		return clients.Clients[0].Applied && clients.Clients[0].Down == 8192
	}, time.Second, time.Millisecond)

	w = performRequest(env.Router, http.MethodGet, "/api/v1/interfaces", "")
	var ifaces models.InterfaceListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ifaces))
	require.Equal(t, 1, ifaces.Count)
	assert.Equal(t, "wlan0", ifaces.Interfaces[0].Name)
	assert.Equal(t, 1, ifaces.Interfaces[0].Clients)

	w = performRequest(env.Router, http.MethodGet, "/api/v1/policies/interfaces/wlan7", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(env.Router, http.MethodGet, "/api/v1/stats", "")
	var stats models.StatisticsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.GreaterOrEqual(t, stats.InterfaceSets, uint64(1))
	assert.GreaterOrEqual(t, stats.ClientSets, uint64(1))
}

func TestIntegration_Purge(t *testing.T) {
	env := NewTestEnv(t)

	w := performRequest(env.Router, http.MethodPut, "/api/v1/policies/clients", `{"down":100,"up":100}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Eventually(t, env.hasCall("client_set 10 wlan0 "+sta1+" 100 100"), time.Second, time.Millisecond)

	w = performRequest(env.Router, http.MethodPost, "/api/v1/purge", "")
	assert.Equal(t, http.StatusAccepted, w.Code)

	assert.Eventually(t, env.hasCall("interface_remove wlan0"), time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		w := performRequest(env.Router, http.MethodGet, "/api/v1/status", "")
		var status models.StatusResponse
		return json.Unmarshal(w.Body.Bytes(), &status) == nil && status.Purge == "done"
	}, time.Second, time.Millisecond)

	w = performRequest(env.Router, http.MethodGet, "/api/v1/policies/clients", "")
	var list models.PolicyListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Zero(t, list.Count)
}

func TestIntegration_Metrics(t *testing.T) {
	env := NewTestEnv(t)

	require.Eventually(t, func() bool {
		w := performRequest(env.Router, http.MethodGet, "/metrics", "")
		body, _ := io.ReadAll(w.Body)
		return w.Code == http.StatusOK && strings.Contains(string(body), "wrl_ticks_total")
	}, time.Second, 5*time.Millisecond)
}

func TestIntegration_Config(t *testing.T) {
	env := NewTestEnv(t)

	prev := log.GetLevel()
	t.Cleanup(func() { log.SetLevel(prev) })

	w := performRequest(env.Router, http.MethodGet, "/api/v1/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cfg models.ConfigResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, "dry-run", cfg.Backend)

	w = performRequest(env.Router, http.MethodPut, "/api/v1/config", `{"log_level":"debug"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	w = performRequest(env.Router, http.MethodPut, "/api/v1/config", `{"log_level":"chatty"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_StartStop(t *testing.T) {
	env := NewTestEnv(t)
	env.Server.config.Port = 0

	require.NoError(t, env.Server.Start())
	require.NotNil(t, env.Server.Addr())

	resp, err := http.Get("http://" + env.Server.Addr().String() + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.NoError(t, env.Server.Stop())
}
