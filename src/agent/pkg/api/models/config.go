// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package models

// ConfigResponse represents the effective daemon configuration
type ConfigResponse struct {
	Interval         string `json:"interval"`
	BusPrefix        string `json:"bus_prefix"`
	Backend          string `json:"backend"`
	ClientCapacity   int    `json:"client_capacity"`
	HandleOffset     int    `json:"handle_offset"`
	MissingThreshold int    `json:"missing_threshold"`
	LogLevel         string `json:"log_level"`
	Storage          string `json:"storage,omitempty"`
	APIHost          string `json:"api_host"`
	APIPort          int    `json:"api_port"`
}

// ConfigUpdateRequest represents a runtime configuration update
type ConfigUpdateRequest struct {
	LogLevel *string `json:"log_level,omitempty" binding:"omitempty,oneof=debug info warn error"`
}
