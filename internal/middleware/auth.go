package middleware

import (
	"net/http"
	"strings"

	"adminauth/internal/model"
	"adminauth/internal/rbac"
	"adminauth/internal/service"
	"adminauth/internal/token"
	"adminauth/pkg/response"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// AccessVerifier is satisfied by *token.Issuer.
type AccessVerifier interface {
	VerifyAccess(tokenString string) (*token.AccessClaims, error)
}

// Authenticate resolves the bearer access token into an rbac.Identity stored on the
// context. Requests without a valid token are rejected with 401.
func Authenticate(verifier AccessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Abort(c, http.StatusUnauthorized, "Authorization is missing", "MISSING_TOKEN")
			return
		}

		claims, err := verifier.VerifyAccess(tokenString)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "Invalid or expired access token", "INVALID_TOKEN")
			return
		}

		c.Set(identityKey, &rbac.Identity{
			UserID:   claims.UserID,
			Username: claims.Username,
			Email:    claims.Email,
			Role:     claims.Role,
		})
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// CurrentIdentity returns the identity set by Authenticate, or nil.
func CurrentIdentity(c *gin.Context) *rbac.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*rbac.Identity)
	return id
}

// Gate turns permission keys into route middleware.
type Gate struct {
	guard *rbac.Guard
	audit service.AuditService
}

func NewGate(guard *rbac.Guard, audit service.AuditService) *Gate {
	return &Gate{guard: guard, audit: audit}
}

// RequirePermission lets the request through when the caller's role holds any of keys.
// It must run after Authenticate.
func (g *Gate) RequirePermission(keys ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := CurrentIdentity(c)
		decision, err := g.guard.Authorize(c.Request.Context(), keys, id)
		if err != nil {
			_ = c.Error(err)
			response.Abort(c, http.StatusInternalServerError, "Failed to verify permissions", "INTERNAL_ERROR")
			return
		}
		if !decision.Allowed {
			if decision.Reason == rbac.DenyNoIdentity {
				response.Abort(c, http.StatusUnauthorized, "Authentication required", "MISSING_TOKEN")
				return
			}
			g.recordDenial(c, id, decision)
			response.Abort(c, http.StatusForbidden, "Access denied: insufficient permissions", "FORBIDDEN")
			return
		}
		c.Next()
	}
}

func (g *Gate) recordDenial(c *gin.Context, id *rbac.Identity, d rbac.Decision) {
	if g.audit == nil || id == nil {
		return
	}
	g.audit.Record(c.Request.Context(), service.AuditEntry{
		ActorID:    id.UserID,
		Action:     model.ActionAccessDenied,
		EntityName: c.FullPath(),
		Details: map[string]any{
			"method":   c.Request.Method,
			"role":     id.Role,
			"required": d.Required,
		},
	})
}
