package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phonginreallife/enablement/services"
)

// ContentHandler handles context items and global access grants
type ContentHandler struct {
	items  *services.ContextItemService
	global *services.GlobalAccessService
}

// NewContentHandler creates a new ContentHandler
func NewContentHandler(items *services.ContextItemService, global *services.GlobalAccessService) *ContentHandler {
	return &ContentHandler{items: items, global: global}
}

// ListItems handles GET /orgs/:org_id/context-items?rag_feature=
func (h *ContentHandler) ListItems(c *gin.Context) {
	items, err := h.items.List(c.Request.Context(), c.Param("org_id"), c.Query("rag_feature"))
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// CreateItem handles POST /orgs/:org_id/context-items
func (h *ContentHandler) CreateItem(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}

	var input services.CreateContextItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.items.Create(c.Request.Context(), who, c.Param("org_id"), input)
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusCreated, item)
}

// DeleteItem handles DELETE /orgs/:org_id/context-items/:item_id
func (h *ContentHandler) DeleteItem(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}

	if err := h.items.Delete(c.Request.Context(), who, c.Param("org_id"), c.Param("item_id")); err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": c.Param("item_id")})
}

// ListGrants handles GET /orgs/:org_id/global-access
func (h *ContentHandler) ListGrants(c *gin.Context) {
	grants, err := h.global.ListGrants(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, grants)
}

// Grant handles POST /orgs/:org_id/global-access/:global_item_id
func (h *ContentHandler) Grant(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}

	grant, err := h.global.Grant(c.Request.Context(), who, c.Param("org_id"), c.Param("global_item_id"))
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusCreated, grant)
}

// Revoke handles DELETE /orgs/:org_id/global-access/:global_item_id
func (h *ContentHandler) Revoke(c *gin.Context) {
	who, found := caller(c)
	if !found {
		return
	}

	if err := h.global.Revoke(c.Request.Context(), who, c.Param("org_id"), c.Param("global_item_id")); err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"revoked": c.Param("global_item_id")})
}
