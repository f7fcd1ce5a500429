package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/datacharted/go-provisioning-backend/internal/auth"
	"github.com/datacharted/go-provisioning-backend/internal/provisioning/domain"
)

func (h *Handler) create(c *gin.Context) {
	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	accountID := auth.AccountID(c)
	p, err := h.svc.ProvisionAsync(c.Request.Context(), accountID, strings.TrimSpace(req.Name), req.FolderName)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidName) {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid project name"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	// Provisioning continues in the background; poll the status endpoint.
	c.JSON(http.StatusAccepted, gin.H{"ok": true, "project": p})
}

func (h *Handler) list(c *gin.Context) {
	accountID := auth.AccountID(c)
	items, err := h.svc.ListProjects(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "projects": items})
}

func (h *Handler) get(c *gin.Context) {
	accountID := auth.AccountID(c)
	includeDeleted := c.Query("include_deleted") == "true"

	p, err := h.svc.GetProject(c.Request.Context(), accountID, c.Param("project_id"), includeDeleted)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "project not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p})
}

func (h *Handler) getStatus(c *gin.Context) {
	rep, found, err := h.status.GetStatus(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "status": "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": rep})
}

func (h *Handler) delete(c *gin.Context) {
	accountID := auth.AccountID(c)

	ok, err := h.svc.DeleteProject(c.Request.Context(), accountID, c.Param("project_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "project not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
