package handler

import (
	"net/http"
	"strconv"

	"adminauth/internal/middleware"
	"adminauth/internal/rbac"
	"adminauth/internal/service"
	"adminauth/pkg/response"

	"github.com/gin-gonic/gin"
)

type RoleHandler struct {
	roleService service.RoleService
}

func NewRoleHandler(roleService service.RoleService) *RoleHandler {
	return &RoleHandler{roleService: roleService}
}

func (h *RoleHandler) RegisterRoutes(router *gin.RouterGroup, gate *middleware.Gate) {
	roles := router.Group("/api/roles")
	{
		roles.GET("", gate.RequirePermission(rbac.PermRoleView), h.ListRoles)
		roles.GET("/:id", gate.RequirePermission(rbac.PermRoleView), h.GetRole)
		roles.POST("", gate.RequirePermission(rbac.PermRoleCreate), h.CreateRole)
		roles.PUT("/:id", gate.RequirePermission(rbac.PermRoleUpdate), h.UpdateRole)
		roles.DELETE("/:id", gate.RequirePermission(rbac.PermRoleDelete), h.DeleteRole)
		roles.PUT("/:id/permissions", gate.RequirePermission(rbac.PermRoleAssignPermission), h.UpdateRolePermissions)
	}

	perms := router.Group("/api/permissions")
	{
		perms.GET("", gate.RequirePermission(rbac.PermPermissionView), h.ListPermissions)
		perms.PATCH("/:id", gate.RequirePermission(rbac.PermPermissionUpdate), h.UpdatePermission)
		perms.DELETE("/:id", gate.RequirePermission(rbac.PermPermissionUpdate), h.DeletePermission)
	}
}

// ListRoles returns all roles with their permissions
// @Summary      List roles
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]service.RoleResponse}
// @Router       /api/roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles, err := h.roleService.ListRoles(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "", roles)
}

// GetRole returns a single role by ID
// @Summary      Get role
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Role ID"
// @Success      200  {object}  response.Response{data=service.RoleResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/roles/{id} [get]
func (h *RoleHandler) GetRole(c *gin.Context) {
	role, err := h.roleService.GetRole(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "", role)
}

// CreateRole creates a new custom role
// @Summary      Create role
// @Tags         roles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateRoleRequest  true  "Role"
// @Success      201      {object}  response.Response{data=service.RoleResponse}
// @Failure      400      {object}  response.Response  "Invalid name or unassignable permission"
// @Failure      409      {object}  response.Response
// @Router       /api/roles [post]
func (h *RoleHandler) CreateRole(c *gin.Context) {
	var req service.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	role, err := h.roleService.CreateRole(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusCreated, "Role created", role)
}

// UpdateRole updates a role's name, description or status
// @Summary      Update role
// @Tags         roles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                     true  "Role ID"
// @Param        payload  body      service.UpdateRoleRequest  true  "Changes"
// @Success      200      {object}  response.Response{data=service.RoleResponse}
// @Failure      403      {object}  response.Response  "Built-in role"
// @Router       /api/roles/{id} [put]
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	var req service.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	role, err := h.roleService.UpdateRole(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Role updated", role)
}

// DeleteRole deletes a non-system role
// @Summary      Delete role
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Role ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response  "Role still assigned"
// @Router       /api/roles/{id} [delete]
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	if err := h.roleService.DeleteRole(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Role deleted successfully", nil)
}

// UpdateRolePermissions replaces all permissions for a role
// @Summary      Replace role permissions
// @Tags         roles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                                true  "Role ID"
// @Param        payload  body      service.UpdateRolePermissionsRequest  true  "Permission keys"
// @Success      200      {object}  response.Response{data=service.RoleResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/roles/{id}/permissions [put]
func (h *RoleHandler) UpdateRolePermissions(c *gin.Context) {
	var req service.UpdateRolePermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	role, err := h.roleService.UpdateRolePermissions(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Role permissions updated", role)
}

// ListPermissions returns the permission catalog
// @Summary      List permissions
// @Tags         permissions
// @Produce      json
// @Security     BearerAuth
// @Param        include_deleted  query     bool  false  "Include soft-deleted keys"
// @Success      200              {object}  response.Response{data=[]service.PermissionResponse}
// @Router       /api/permissions [get]
func (h *RoleHandler) ListPermissions(c *gin.Context) {
	includeDeleted, _ := strconv.ParseBool(c.Query("include_deleted"))
	perms, err := h.roleService.ListPermissions(c.Request.Context(), includeDeleted)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "", perms)
}

// UpdatePermission edits a catalog entry
// @Summary      Update permission
// @Tags         permissions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                           true  "Permission ID"
// @Param        payload  body      service.UpdatePermissionRequest  true  "Changes"
// @Success      200      {object}  response.Response{data=service.PermissionResponse}
// @Failure      404      {object}  response.Response
// @Router       /api/permissions/{id} [patch]
func (h *RoleHandler) UpdatePermission(c *gin.Context) {
	var req service.UpdatePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	perm, err := h.roleService.UpdatePermission(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Permission updated", perm)
}

// DeletePermission soft-deletes a catalog entry
// @Summary      Delete permission
// @Tags         permissions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Permission ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/permissions/{id} [delete]
func (h *RoleHandler) DeletePermission(c *gin.Context) {
	if err := h.roleService.DeletePermission(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Permission deleted", nil)
}
