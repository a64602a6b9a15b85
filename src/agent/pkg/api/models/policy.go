// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package models

// PolicyRequest represents an interface or client policy write. Both
// rates are required; 0 means unlimited in that direction, 0/0 removes
// shaping. An empty interface writes the wildcard entry.
type PolicyRequest struct {
	Interface string  `json:"interface" binding:"max=64"`
	Down      *uint32 `json:"down" binding:"required"`
	Up        *uint32 `json:"up" binding:"required"`
}

// PolicyResponse represents a policy entry in API responses
type PolicyResponse struct {
	Interface string `json:"interface"`
	Down      uint32 `json:"down"`
	Up        uint32 `json:"up"`
}

// PolicyListResponse represents a policy table in insertion order
type PolicyListResponse struct {
	Policies []PolicyResponse `json:"policies"`
	Count    int              `json:"count"`
}
