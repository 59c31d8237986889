package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phonginreallife/enablement/db"
	"github.com/phonginreallife/enablement/services"
)

// QuotaHandler handles quota requests. Capability checks are done by route middleware.
type QuotaHandler struct {
	quotas *services.QuotaEnforcer
}

// NewQuotaHandler creates a new QuotaHandler
func NewQuotaHandler(quotas *services.QuotaEnforcer) *QuotaHandler {
	return &QuotaHandler{quotas: quotas}
}

type quotaCheckRequest struct {
	QuotaType db.QuotaType `json:"quota_type" binding:"required"`
	Quantity  int          `json:"quantity"`
}

type quotaResetRequest struct {
	QuotaType *db.QuotaType `json:"quota_type"`
}

// Get handles GET /orgs/:org_id/quotas
func (h *QuotaHandler) Get(c *gin.Context) {
	quota, err := h.quotas.GetOrCreate(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, quota)
}

// Check handles POST /orgs/:org_id/quotas/check
func (h *QuotaHandler) Check(c *gin.Context) {
	var req quotaCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	check, err := h.quotas.Check(c.Request.Context(), c.Param("org_id"), req.QuotaType, req.Quantity)
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, check)
}

// Reset handles POST /orgs/:org_id/quotas/reset
func (h *QuotaHandler) Reset(c *gin.Context) {
	var req quotaResetRequest
	// An empty body resets every counter
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	quota, err := h.quotas.Reset(c.Request.Context(), c.Param("org_id"), req.QuotaType)
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, quota)
}

// SetLimits handles PUT /orgs/:org_id/quotas/limits
func (h *QuotaHandler) SetLimits(c *gin.Context) {
	var limits db.QuotaLimits
	if err := c.ShouldBindJSON(&limits); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	quota, err := h.quotas.SetLimits(c.Request.Context(), c.Param("org_id"), limits)
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, quota)
}
