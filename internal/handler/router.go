package handler

import (
	"net/http"

	"adminauth/internal/metrics"
	"adminauth/internal/middleware"
	"adminauth/internal/rbac"
	"adminauth/internal/service"
	"adminauth/internal/token"
	"adminauth/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type RouterDeps struct {
	Auth        service.AuthService
	Users       service.UserService
	Roles       service.RoleService
	Audit       service.AuditService
	Issuer      *token.Issuer
	Guard       *rbac.Guard
	Hub         *websocket.Hub
	Limiter     *middleware.RateLimiter
	CORSOrigins []string
}

// NewRouter wires every route. Public auth endpoints sit behind the rate limiter;
// everything else requires a bearer access token and a permission.
func NewRouter(d RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), metrics.Instrument())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = d.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	if len(corsConfig.AllowOrigins) > 0 {
		router.Use(cors.New(corsConfig))
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	router.GET("/metrics", metrics.Handler())

	gate := middleware.NewGate(d.Guard, d.Audit)
	if d.Hub != nil {
		router.GET("/ws", websocket.Handler(d.Hub, d.Issuer, d.Guard, rbac.PermUserView, rbac.PermRoleView))
	}

	public := router.Group("")
	if d.Limiter != nil {
		public.Use(d.Limiter.Middleware())
	}
	authed := router.Group("", middleware.Authenticate(d.Issuer))

	NewAuthHandler(d.Auth).RegisterRoutes(public, authed, gate)
	NewUserHandler(d.Users).RegisterRoutes(authed, gate)
	NewRoleHandler(d.Roles).RegisterRoutes(authed, gate)
	NewAuditHandler(d.Audit).RegisterRoutes(authed, gate)
	return router
}
