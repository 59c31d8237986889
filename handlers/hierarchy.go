package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phonginreallife/enablement/services"
)

// HierarchyHandler handles organization tree requests
type HierarchyHandler struct {
	hierarchy *services.HierarchyResolver
	toggles   *services.FeatureToggleService
}

// NewHierarchyHandler creates a new HierarchyHandler
func NewHierarchyHandler(hierarchy *services.HierarchyResolver, toggles *services.FeatureToggleService) *HierarchyHandler {
	return &HierarchyHandler{hierarchy: hierarchy, toggles: toggles}
}

type setParentRequest struct {
	ParentOrganizationID *string `json:"parent_organization_id"`
}

// Chain handles GET /orgs/:org_id/hierarchy
func (h *HierarchyHandler) Chain(c *gin.Context) {
	orgID := c.Param("org_id")
	chain, err := h.hierarchy.Chain(c.Request.Context(), orgID)
	if err != nil {
		failWith(c, err)
		return
	}
	if len(chain.Chain) == 0 {
		fail(c, http.StatusNotFound, "organization not found")
		return
	}
	ok(c, http.StatusOK, chain)
}

// Children handles GET /orgs/:org_id/children
func (h *HierarchyHandler) Children(c *gin.Context) {
	children, err := h.hierarchy.Children(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, children)
}

// SetParent handles PUT /orgs/:org_id/parent
func (h *HierarchyHandler) SetParent(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}

	var req setParentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	orgID := c.Param("org_id")
	if err := h.toggles.MoveOrganization(c.Request.Context(), who, orgID, req.ParentOrganizationID); err != nil {
		failWith(c, err)
		return
	}

	chain, err := h.hierarchy.Chain(c.Request.Context(), orgID)
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, chain)
}
