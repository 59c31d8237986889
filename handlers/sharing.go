package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phonginreallife/enablement/db"
	"github.com/phonginreallife/enablement/services"
)

// SharingHandler handles cross-organization sharing requests
type SharingHandler struct {
	sharing *services.SharingWorkflow
}

// NewSharingHandler creates a new SharingHandler
func NewSharingHandler(sharing *services.SharingWorkflow) *SharingHandler {
	return &SharingHandler{sharing: sharing}
}

type shareRequest struct {
	TargetOrganizationID string         `json:"target_organization_id" binding:"required"`
	RAGFeature           string         `json:"rag_feature" binding:"required"`
	ItemID               string         `json:"item_id" binding:"required"`
	SharingType          db.SharingType `json:"sharing_type"`
}

type shareHierarchyRequest struct {
	RAGFeature string `json:"rag_feature" binding:"required"`
	ItemID     string `json:"item_id" binding:"required"`
}

type rejectRequest struct {
	Reason *string `json:"reason"`
}

// Share handles POST /orgs/:org_id/sharing/share
func (h *SharingHandler) Share(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}

	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.sharing.Share(c.Request.Context(), who, services.ShareInput{
		SourceOrganizationID: c.Param("org_id"),
		TargetOrganizationID: req.TargetOrganizationID,
		RAGFeature:           req.RAGFeature,
		ItemID:               req.ItemID,
		SharingType:          req.SharingType,
	})
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusCreated, created)
}

// ShareToChildren handles POST /orgs/:org_id/sharing/children
func (h *SharingHandler) ShareToChildren(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}

	var req shareHierarchyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.sharing.ShareToChildren(c.Request.Context(), who, c.Param("org_id"), req.ItemID, req.RAGFeature)
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusCreated, result)
}

// ShareToParent handles POST /orgs/:org_id/sharing/parent
func (h *SharingHandler) ShareToParent(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}

	var req shareHierarchyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.sharing.ShareToParent(c.Request.Context(), who, c.Param("org_id"), req.ItemID, req.RAGFeature)
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusCreated, created)
}

// Received handles GET /orgs/:org_id/sharing/received
func (h *SharingHandler) Received(c *gin.Context) {
	reqs, err := h.sharing.Received(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, reqs)
}

// PendingApprovals handles GET /orgs/:org_id/sharing/pending-approvals
func (h *SharingHandler) PendingApprovals(c *gin.Context) {
	reqs, err := h.sharing.PendingApprovals(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, reqs)
}

// Outgoing handles GET /orgs/:org_id/sharing/outgoing
func (h *SharingHandler) Outgoing(c *gin.Context) {
	reqs, err := h.sharing.Outgoing(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, reqs)
}

// Stats handles GET /orgs/:org_id/sharing/stats
func (h *SharingHandler) Stats(c *gin.Context) {
	stats, err := h.sharing.Stats(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, stats)
}

// Approve handles POST /sharing/:id/approve
func (h *SharingHandler) Approve(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}

	result, err := h.sharing.Approve(c.Request.Context(), who, c.Param("id"))
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, result)
}

// Reject handles POST /sharing/:id/reject
func (h *SharingHandler) Reject(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}

	var req rejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	rejected, err := h.sharing.Reject(c.Request.Context(), who, c.Param("id"), req.Reason)
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, rejected)
}
