package handler

import (
	"net/http"

	"adminauth/internal/middleware"
	"adminauth/internal/rbac"
	"adminauth/internal/service"
	"adminauth/pkg/pagination"
	"adminauth/pkg/response"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService service.UserService
}

// NewUserHandler sets up the routing dependencies for User endpoints
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// RegisterRoutes binds the endpoints to an authenticated RouterGroup
func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup, gate *middleware.Gate) {
	users := router.Group("/api/users")
	{
		users.GET("", gate.RequirePermission(rbac.PermUserView), h.ListUsers)
		users.GET("/:id", gate.RequirePermission(rbac.PermUserView), h.GetUserByID)
		users.PATCH("/:id/status", gate.RequirePermission(rbac.PermUserUpdate), h.UpdateStatus)
		users.PUT("/:id/role", gate.RequirePermission(rbac.PermUserAssignRole), h.AssignRole)
		users.DELETE("/:id", gate.RequirePermission(rbac.PermUserDelete), h.DeleteUser)
	}
}

func actorID(c *gin.Context) string {
	if id := middleware.CurrentIdentity(c); id != nil {
		return id.UserID
	}
	return ""
}

// ListUsers handles GET /api/users
// @Summary      List users
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        page             query     int     false  "Page number (default 1)"
// @Param        limit            query     int     false  "Items per page (default 20, max 100)"
// @Param        search           query     string  false  "Username or email fragment"
// @Param        role_id          query     string  false  "Only users holding this role"
// @Param        include_deleted  query     bool    false  "Include soft-deleted accounts"
// @Success      200              {object}  response.Response{data=pagination.Page[service.UserResponse]}
// @Failure      403              {object}  response.Response
// @Router       /api/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	var q service.ListUsersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	page, err := h.userService.ListUsers(c.Request.Context(), q, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "", page)
}

// GetUserByID handles GET /api/users/:id
// @Summary      Get user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response{data=service.UserResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/users/{id} [get]
func (h *UserHandler) GetUserByID(c *gin.Context) {
	user, err := h.userService.GetUserByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "", user)
}

// UpdateStatus locks or unlocks an account
// @Summary      Activate or deactivate user
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                           true  "User ID"
// @Param        payload  body      service.UpdateUserStatusRequest  true  "Status"
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Failure      403      {object}  response.Response
// @Router       /api/users/{id}/status [patch]
func (h *UserHandler) UpdateStatus(c *gin.Context) {
	var req service.UpdateUserStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	user, err := h.userService.SetUserActive(c.Request.Context(), actorID(c), c.Param("id"), *req.IsActive)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "User status updated", user)
}

// AssignRole moves a user to another role
// @Summary      Change user role
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                     true  "User ID"
// @Param        payload  body      service.AssignRoleRequest  true  "Role"
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Failure      404      {object}  response.Response
// @Router       /api/users/{id}/role [put]
func (h *UserHandler) AssignRole(c *gin.Context) {
	var req service.AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	user, err := h.userService.AssignRole(c.Request.Context(), actorID(c), c.Param("id"), req.RoleID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "User role updated", user)
}

// DeleteUser soft-deletes an account
// @Summary      Delete user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	if err := h.userService.DeleteUser(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "User deleted successfully", nil)
}
