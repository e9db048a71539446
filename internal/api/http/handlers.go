// Package http exposes the registry's operations over a management API.
//
// The handlers are thin adapters; every policy decision (bounds, no-op
// asymmetry, rollback) lives in the registry. A UI or remote-management
// layer is the intended caller.
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rfdeck/appos/internal/permissions"
	"github.com/rfdeck/appos/internal/registry"
	"github.com/rfdeck/appos/internal/shared/errs"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	registry *registry.Manager
}

// NewHandlers creates the API handlers.
func NewHandlers(reg *registry.Manager) *Handlers {
	return &Handlers{registry: reg}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrResourceExhausted):
		return http.StatusInsufficientStorage
	case errors.Is(err, errs.ErrInvalidState), errors.Is(err, errs.ErrAlreadyInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// Health handles GET /health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "stats": h.registry.Stats()})
}

// ListApps handles GET /apps.
func (h *Handlers) ListApps(c *gin.Context) {
	limit := 16
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			fail(c, errs.ErrInvalidArgument)
			return
		}
		limit = parsed
	}
	c.JSON(http.StatusOK, gin.H{"apps": h.registry.List(limit)})
}

type installRequest struct {
	PackagePath string `json:"package_path" binding:"required"`
}

// InstallApp handles POST /apps.
func (h *Handlers) InstallApp(c *gin.Context) {
	var req installRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrInvalidArgument)
		return
	}

	appID, err := h.registry.Install(req.PackagePath)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"app_id": appID})
}

// GetApp handles GET /apps/:id.
func (h *Handlers) GetApp(c *gin.Context) {
	info, err := h.registry.AppInfo(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// UninstallApp handles DELETE /apps/:id.
func (h *Handlers) UninstallApp(c *gin.Context) {
	if err := h.registry.Uninstall(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "uninstalled"})
}

// StartApp handles POST /apps/:id/start.
func (h *Handlers) StartApp(c *gin.Context) {
	if err := h.registry.Start(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "running"})
}

// StopApp handles POST /apps/:id/stop.
func (h *Handlers) StopApp(c *gin.Context) {
	if err := h.registry.Stop(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// PauseApp handles POST /apps/:id/pause.
func (h *Handlers) PauseApp(c *gin.Context) {
	if err := h.registry.Pause(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

// ResumeApp handles POST /apps/:id/resume.
func (h *Handlers) ResumeApp(c *gin.Context) {
	if err := h.registry.Resume(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "running"})
}

// CurrentApp handles GET /apps/current.
func (h *Handlers) CurrentApp(c *gin.Context) {
	appID, ok := h.registry.CurrentApp()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"app_id": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"app_id": appID})
}

// GetPermissions handles GET /apps/:id/permissions.
func (h *Handlers) GetPermissions(c *gin.Context) {
	info, err := h.registry.AppInfo(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"permissions": permissions.Format(permissions.Capability(info.Permissions)),
		"mask":        info.Permissions,
	})
}

type permissionsRequest struct {
	Permissions string `json:"permissions"`
}

// SetPermissions handles PUT /apps/:id/permissions.
func (h *Handlers) SetPermissions(c *gin.Context) {
	var req permissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrInvalidArgument)
		return
	}

	mask := permissions.Parse(req.Permissions)
	if err := h.registry.SetPermissions(c.Param("id"), mask); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"permissions": permissions.Format(mask)})
}

// GrantPermissions handles POST /apps/:id/permissions/grant.
func (h *Handlers) GrantPermissions(c *gin.Context) {
	h.updatePermissions(c, h.registry.Grant)
}

// RevokePermissions handles POST /apps/:id/permissions/revoke.
func (h *Handlers) RevokePermissions(c *gin.Context) {
	h.updatePermissions(c, h.registry.Revoke)
}

func (h *Handlers) updatePermissions(c *gin.Context, apply func(string, permissions.Capability) error) {
	var req permissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrInvalidArgument)
		return
	}

	if err := apply(c.Param("id"), permissions.Parse(req.Permissions)); err != nil {
		fail(c, err)
		return
	}

	info, err := h.registry.AppInfo(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"permissions": permissions.Format(permissions.Capability(info.Permissions)),
	})
}

// ListCapabilities handles GET /capabilities.
func (h *Handlers) ListCapabilities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"capabilities": permissions.Names()})
}
