// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package api

import (
	"net/http"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/api/handlers"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/api/models"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.dataPlane, s.engine)
	policyHandler := handlers.NewPolicyHandler(s.engine)
	stateHandler := handlers.NewStateHandler(s.engine)
	statsHandler := handlers.NewStatisticsHandler(s.dataPlane)

	gatherer := s.config.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", healthHandler.GetHealth)
		v1.GET("/status", healthHandler.GetStatus)

		policies := v1.Group("/policies")
		{
			policies.DELETE("", policyHandler.Purge)

			policies.GET("/interfaces", policyHandler.ListInterfacePolicies)
			policies.PUT("/interfaces", policyHandler.SetInterfacePolicy)
			policies.GET("/interfaces/:name", policyHandler.GetInterfacePolicy)

			policies.GET("/clients", policyHandler.ListClientPolicies)
			policies.PUT("/clients", policyHandler.SetClientPolicy)
			policies.GET("/clients/:name", policyHandler.GetClientPolicy)
		}
		v1.POST("/purge", policyHandler.Purge)

		v1.GET("/interfaces", stateHandler.GetInterfaces)
		v1.GET("/clients", stateHandler.GetClients)

		v1.GET("/stats", statsHandler.GetStats)

		config := v1.Group("/config")
		{
			config.GET("", s.handleGetConfig)
			config.PUT("", s.handleUpdateConfig)
		}
	}
}

func (s *Server) handleGetConfig(c *gin.Context) {
	s.settingsMu.Lock()
	settings := s.settings
	s.settingsMu.Unlock()

	settings.LogLevel = log.GetLevel().String()
	c.JSON(http.StatusOK, settings)
}

// handleUpdateConfig applies the runtime-tunable settings. Only the log
// level can change without a restart.
func (s *Server) handleUpdateConfig(c *gin.Context) {
	var req models.ConfigUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewErrorResponse(
			http.StatusBadRequest,
			"validation_error",
			"Invalid request body",
			err.Error(),
		))
		return
	}

	if req.LogLevel != nil {
		level, err := log.ParseLevel(*req.LogLevel)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.NewErrorResponse(
				http.StatusBadRequest,
				"validation_error",
				"Invalid log level",
				err.Error(),
			))
			return
		}
		log.SetLevel(level)
		log.Infof("Log level changed to %s via API", level)
	}

	s.handleGetConfig(c)
}
