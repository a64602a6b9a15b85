// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/api/models"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/policy"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/reconciler"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

// WildcardName addresses the wildcard entry in URL paths
const WildcardName = "*"

// PolicyHandler handles policy management requests
type PolicyHandler struct {
	policyManager policy.Manager
}

// NewPolicyHandler creates a new policy handler
func NewPolicyHandler(pm policy.Manager) *PolicyHandler {
	return &PolicyHandler{
		policyManager: pm,
	}
}

// managerError writes the response for a failed manager call
func managerError(c *gin.Context, err error, message string) {
	if errors.Is(err, reconciler.ErrNotRunning) {
		c.JSON(http.StatusServiceUnavailable, models.NewErrorResponse(
			http.StatusServiceUnavailable,
			"unavailable",
			message,
			err.Error(),
		))
		return
	}

	log.Errorf("%s: %v", message, err)
	c.JSON(http.StatusInternalServerError, models.NewErrorResponse(
		http.StatusInternalServerError,
		"policy_error",
		message,
		err.Error(),
	))
}

// bindPolicy parses a policy write. Nothing is mutated when it fails.
func bindPolicy(c *gin.Context) (models.PolicyRequest, bool) {
	var req models.PolicyRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewErrorResponse(
			http.StatusBadRequest,
			"validation_error",
			"Invalid request body",
			validationDetails(err),
		))
		return req, false
	}
	return req, true
}

// validationDetails lists the failing fields, or the decode error when
// the body did not parse at all.
func validationDetails(err error) interface{} {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	details := make([]models.ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("failed on %q", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed on %q (%s)", fe.Tag(), fe.Param())
		}
		details = append(details, models.ValidationError{
			Field:   strings.ToLower(fe.Field()),
			Message: msg,
		})
	}
	return details
}

func interfaceParam(c *gin.Context) string {
	name := c.Param("name")
	if name == WildcardName {
		return ""
	}
	return name
}

func interfaceResponse(e policy.InterfaceEntry) models.PolicyResponse {
	return models.PolicyResponse{
		Interface: e.Selectors.Interface,
		Down:      e.Rate.Down,
		Up:        e.Rate.Up,
	}
}

func clientResponse(e policy.ClientEntry) models.PolicyResponse {
	return models.PolicyResponse{
		Interface: e.Selectors.Interface,
		Down:      e.Rate.Down,
		Up:        e.Rate.Up,
	}
}

// SetInterfacePolicy handles PUT /api/v1/policies/interfaces
func (h *PolicyHandler) SetInterfacePolicy(c *gin.Context) {
	req, ok := bindPolicy(c)
	if !ok {
		return
	}

	entry, err := h.policyManager.SetInterfacePolicy(c.Request.Context(),
		policy.InterfaceSelectors{Interface: req.Interface},
		policy.Rate{Down: *req.Down, Up: *req.Up})
	if err != nil {
		managerError(c, err, "Failed to set interface policy")
		return
	}

	c.JSON(http.StatusOK, interfaceResponse(entry))
}

// SetClientPolicy handles PUT /api/v1/policies/clients
func (h *PolicyHandler) SetClientPolicy(c *gin.Context) {
	req, ok := bindPolicy(c)
	if !ok {
		return
	}

	entry, err := h.policyManager.SetClientPolicy(c.Request.Context(),
		policy.ClientSelectors{Interface: req.Interface},
		policy.Rate{Down: *req.Down, Up: *req.Up})
	if err != nil {
		managerError(c, err, "Failed to set client policy")
		return
	}

	c.JSON(http.StatusOK, clientResponse(entry))
}

// GetInterfacePolicy handles GET /api/v1/policies/interfaces/:name
// It returns the entry the named interface resolves to.
func (h *PolicyHandler) GetInterfacePolicy(c *gin.Context) {
	name := interfaceParam(c)

	entry, found, err := h.policyManager.InterfacePolicy(c.Request.Context(), name)
	if err != nil {
		managerError(c, err, "Failed to retrieve interface policy")
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, models.NewErrorResponse(
			http.StatusNotFound,
			"not_found",
			fmt.Sprintf("No interface policy matches %q", name),
			nil,
		))
		return
	}

	c.JSON(http.StatusOK, interfaceResponse(entry))
}

// GetClientPolicy handles GET /api/v1/policies/clients/:name
func (h *PolicyHandler) GetClientPolicy(c *gin.Context) {
	name := interfaceParam(c)

	entry, found, err := h.policyManager.ClientPolicy(c.Request.Context(), name)
	if err != nil {
		managerError(c, err, "Failed to retrieve client policy")
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, models.NewErrorResponse(
			http.StatusNotFound,
			"not_found",
			fmt.Sprintf("No client policy matches %q", name),
			nil,
		))
		return
	}

	c.JSON(http.StatusOK, clientResponse(entry))
}

// ListInterfacePolicies handles GET /api/v1/policies/interfaces
func (h *PolicyHandler) ListInterfacePolicies(c *gin.Context) {
	entries, err := h.policyManager.ListInterfacePolicies(c.Request.Context())
	if err != nil {
		managerError(c, err, "Failed to list interface policies")
		return
	}

	policies := make([]models.PolicyResponse, 0, len(entries))
	for _, e := range entries {
		policies = append(policies, interfaceResponse(e))
	}

	c.JSON(http.StatusOK, models.PolicyListResponse{
		Policies: policies,
		Count:    len(policies),
	})
}

// ListClientPolicies handles GET /api/v1/policies/clients
func (h *PolicyHandler) ListClientPolicies(c *gin.Context) {
	entries, err := h.policyManager.ListClientPolicies(c.Request.Context())
	if err != nil {
		managerError(c, err, "Failed to list client policies")
		return
	}

	policies := make([]models.PolicyResponse, 0, len(entries))
	for _, e := range entries {
		policies = append(policies, clientResponse(e))
	}

	c.JSON(http.StatusOK, models.PolicyListResponse{
		Policies: policies,
		Count:    len(policies),
	})
}

// Purge handles DELETE /api/v1/policies and POST /api/v1/purge
// Both tables are cleared and all shaping is removed on the next pass.
func (h *PolicyHandler) Purge(c *gin.Context) {
	if err := h.policyManager.Purge(c.Request.Context()); err != nil {
		managerError(c, err, "Failed to purge policies")
		return
	}

	log.Info("All policies purged via API")
	c.JSON(http.StatusAccepted, models.PurgeResponse{
		Purge:   reconciler.PurgePending.String(),
		Message: "All policies removed, shaping will be removed on the next pass",
	})
}
