package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phonginreallife/enablement/authz"
	"github.com/phonginreallife/enablement/services"
)

// FeatureHandler handles feature toggle and inheritance requests
type FeatureHandler struct {
	toggles  *services.FeatureToggleService
	resolver *services.InheritanceResolver
	checker  *authz.PermissionChecker
}

// NewFeatureHandler creates a new FeatureHandler
func NewFeatureHandler(toggles *services.FeatureToggleService, resolver *services.InheritanceResolver, checker *authz.PermissionChecker) *FeatureHandler {
	return &FeatureHandler{toggles: toggles, resolver: resolver, checker: checker}
}

type setToggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type bulkToggleRequest struct {
	Toggles map[string]bool `json:"toggles" binding:"required"`
}

type validateRuleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// List handles GET /orgs/:org_id/features
func (h *FeatureHandler) List(c *gin.Context) {
	toggles, err := h.toggles.List(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, toggles)
}

// Set handles PATCH /orgs/:org_id/features/:feature
func (h *FeatureHandler) Set(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}

	var req setToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	toggle, err := h.toggles.Set(c.Request.Context(), who, c.Param("org_id"), c.Param("feature"), *req.Enabled)
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, toggle)
}

// Delete handles DELETE /orgs/:org_id/features/:feature
func (h *FeatureHandler) Delete(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}

	if err := h.toggles.Delete(c.Request.Context(), who, c.Param("org_id"), c.Param("feature")); err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": c.Param("feature")})
}

// BulkSet handles POST /orgs/:org_id/features/bulk
func (h *FeatureHandler) BulkSet(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}

	var req bulkToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.toggles.BulkSet(c.Request.Context(), who, c.Param("org_id"), req.Toggles)
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, results)
}

// Enabled handles GET /orgs/:org_id/features/enabled
func (h *FeatureHandler) Enabled(c *gin.Context) {
	features, err := h.toggles.Enabled(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"features": features})
}

// Inherited handles GET /orgs/:org_id/features/inherited
func (h *FeatureHandler) Inherited(c *gin.Context) {
	features, err := h.resolver.InheritedFeatures(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, features)
}

// Effective handles GET /orgs/:org_id/features/effective
func (h *FeatureHandler) Effective(c *gin.Context) {
	set, err := h.resolver.EffectiveFeatures(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, set)
}

// Resolved handles GET /orgs/:org_id/features/resolved
func (h *FeatureHandler) Resolved(c *gin.Context) {
	resolved, err := h.resolver.ResolveFeatures(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, resolved)
}

// Summary handles GET /orgs/:org_id/features/summary
func (h *FeatureHandler) Summary(c *gin.Context) {
	summary, err := h.resolver.InheritanceSummary(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, summary)
}

// Status handles GET /orgs/:org_id/features/:feature/status
func (h *FeatureHandler) Status(c *gin.Context) {
	status, err := h.resolver.OverrideStatus(c.Request.Context(), c.Param("org_id"), c.Param("feature"))
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, status)
}

// Override handles GET /orgs/:org_id/features/:feature/override
func (h *FeatureHandler) Override(c *gin.Context) {
	result, err := h.resolver.CanOverrideFeature(c.Request.Context(), c.Param("org_id"), c.Param("feature"))
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, result)
}

// Validate handles POST /orgs/:org_id/features/:feature/validate
func (h *FeatureHandler) Validate(c *gin.Context) {
	var req validateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	rule, err := h.resolver.ValidateInheritanceRules(c.Request.Context(), c.Param("org_id"), c.Param("feature"), *req.Enabled)
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, rule)
}

// Access handles GET /orgs/:org_id/features/:feature/access
func (h *FeatureHandler) Access(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}

	orgID, feature := c.Param("org_id"), c.Param("feature")
	allowed, err := h.checker.CanUseRAGFeature(c.Request.Context(), who, feature, orgID)
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"organization_id": orgID,
		"rag_feature":     feature,
		"allowed":         allowed,
	})
}
