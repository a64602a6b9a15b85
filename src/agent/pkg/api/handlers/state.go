// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package handlers

import (
	"context"
	"net/http"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/api/models"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/reconciler"
	"github.com/gin-gonic/gin"
)

// StateReader exposes snapshots of the live reconciliation state
type StateReader interface {
	Status(ctx context.Context) (reconciler.Status, error)
	Interfaces(ctx context.Context) ([]reconciler.InterfaceStatus, error)
	Clients(ctx context.Context) ([]reconciler.ClientStatus, error)
}

// Ensure the engine can back the state endpoints
var _ StateReader = (*reconciler.Engine)(nil)

// StateHandler handles live interface and client queries
type StateHandler struct {
	state StateReader
}

// NewStateHandler creates a new state handler
func NewStateHandler(state StateReader) *StateHandler {
	return &StateHandler{
		state: state,
	}
}

// GetInterfaces handles GET /api/v1/interfaces
func (h *StateHandler) GetInterfaces(c *gin.Context) {
	ifaces, err := h.state.Interfaces(c.Request.Context())
	if err != nil {
		managerError(c, err, "Failed to list interfaces")
		return
	}

	out := make([]models.InterfaceResponse, 0, len(ifaces))
	for _, iface := range ifaces {
		out = append(out, models.InterfaceResponse{
			Name:      iface.Name,
			SessionID: iface.SessionID,
			Down:      iface.Rate.Down,
			Up:        iface.Rate.Up,
			Applied:   iface.Applied,
			Missing:   iface.Missing,
			Clients:   iface.Clients,
		})
	}

	c.JSON(http.StatusOK, models.InterfaceListResponse{
		Interfaces: out,
		Count:      len(out),
	})
}

// GetClients handles GET /api/v1/clients
// An optional ?interface= query narrows the result to one interface.
func (h *StateHandler) GetClients(c *gin.Context) {
	clients, err := h.state.Clients(c.Request.Context())
	if err != nil {
		managerError(c, err, "Failed to list clients")
		return
	}

	filter := c.Query("interface")

	out := make([]models.ClientResponse, 0, len(clients))
	for _, client := range clients {
		if filter != "" && client.Interface != filter {
			continue
		}
		out = append(out, models.ClientResponse{
			Address:   client.Address.String(),
			Interface: client.Interface,
			Slot:      client.Slot,
			Handle:    client.Handle,
			Down:      client.Rate.Down,
			Up:        client.Rate.Up,
			Applied:   client.Applied,
		})
	}

	c.JSON(http.StatusOK, models.ClientListResponse{
		Clients: out,
		Count:   len(out),
	})
}
