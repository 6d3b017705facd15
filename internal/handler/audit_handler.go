package handler

import (
	"net/http"

	"adminauth/internal/middleware"
	"adminauth/internal/rbac"
	"adminauth/internal/repository"
	"adminauth/internal/service"
	"adminauth/pkg/pagination"
	"adminauth/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup, gate *middleware.Gate) {
	router.GET("/api/audit-logs", gate.RequirePermission(rbac.PermAuditView), h.GetAuditLogs)
}

// GetAuditLogs retrieves strictly paginated records with Users pre-loaded joining details
// @Summary      Get audit logs
// @Description  Newest first. Filter by action and by acting user.
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        page     query     int     false  "Page number (default 1)"
// @Param        limit    query     int     false  "Number of items per page (default 20)"
// @Param        action   query     string  false  "e.g. LOGIN_FAILURE"
// @Param        user_id  query     string  false  "Acting user ID"
// @Success      200      {object}  response.Response{data=pagination.Page[service.AuditLogResponse]}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	filter := repository.AuditFilter{Action: c.Query("action")}
	if raw := c.Query("user_id"); raw != "" {
		uid, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, service.ErrInvalidID)
			return
		}
		filter.UserID = &uid
	}

	page, err := h.auditService.GetAuditLogs(c.Request.Context(), filter, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "", page)
}
