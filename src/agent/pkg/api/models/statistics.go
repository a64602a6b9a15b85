// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package models

// StatisticsResponse represents the shaping backend command counters
type StatisticsResponse struct {
	InterfaceSets    uint64  `json:"interface_sets"`
	InterfaceRemoves uint64  `json:"interface_removes"`
	ClientSets       uint64  `json:"client_sets"`
	ClientRemoves    uint64  `json:"client_removes"`
	Failures         uint64  `json:"failures"`
	Total            uint64  `json:"total"`
	FailureRate      float64 `json:"failure_rate"`
}
