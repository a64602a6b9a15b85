// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package models

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"` // "ok", "degraded", "down"
	Message string `json:"message"`
}

// StatusResponse represents detailed daemon status
type StatusResponse struct {
	Status            string              `json:"status"` // "ok", "degraded"
	Version           string              `json:"version"`
	Reconciler        ReconcilerStatus    `json:"reconciler"`
	API               APIStatus           `json:"api"`
	Purge             string              `json:"purge"` // "none", "pending", "done"
	Interfaces        int                 `json:"interfaces"`
	Clients           int                 `json:"clients"`
	InterfacePolicies int                 `json:"interface_policies"`
	ClientPolicies    int                 `json:"client_policies"`
	Statistics        *StatisticsResponse `json:"statistics,omitempty"`
	Uptime            int64               `json:"uptime_seconds"`
}

// ReconcilerStatus represents the reconciliation loop status
type ReconcilerStatus struct {
	Status  string `json:"status"` // "running", "stopped"
	Message string `json:"message"`
}

// APIStatus represents API server status
type APIStatus struct {
	Status  string `json:"status"` // "running", "stopped", "error"
	Message string `json:"message"`
}
