// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package models

// InterfaceResponse represents a live wireless interface
type InterfaceResponse struct {
	Name      string `json:"name"`
	SessionID uint32 `json:"session_id"`
	Down      uint32 `json:"down"`
	Up        uint32 `json:"up"`
	Applied   bool   `json:"applied"`
	Missing   int    `json:"missing"`
	Clients   int    `json:"clients"`
}

// InterfaceListResponse represents all live interfaces
type InterfaceListResponse struct {
	Interfaces []InterfaceResponse `json:"interfaces"`
	Count      int                 `json:"count"`
}

// ClientResponse represents a live client
type ClientResponse struct {
	Address   string `json:"address"`
	Interface string `json:"interface"`
	Slot      int    `json:"slot"`
	Handle    int    `json:"handle"`
	Down      uint32 `json:"down"`
	Up        uint32 `json:"up"`
	Applied   bool   `json:"applied"`
}

// ClientListResponse represents all live clients
type ClientListResponse struct {
	Clients []ClientResponse `json:"clients"`
	Count   int              `json:"count"`
}

// PurgeResponse is returned when a purge was scheduled
type PurgeResponse struct {
	Purge   string `json:"purge"`
	Message string `json:"message"`
}
