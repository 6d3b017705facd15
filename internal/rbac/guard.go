package rbac

import (
	"context"
	"fmt"
	"log"
	"strings"

	"adminauth/internal/metrics"
)

type DenyReason string

const (
	DenyNoIdentity             DenyReason = "no_identity"
	DenyInsufficientPermission DenyReason = "insufficient_permission"
)

// Identity is the authenticated caller as resolved from an access token.
type Identity struct {
	UserID   string
	Username string
	Email    string
	Role     string
}

type Decision struct {
	Allowed bool
	Reason  DenyReason
	// Required lists the keys any one of which would have sufficed. Diagnostic only.
	Required []string
}

func (d Decision) String() string {
	if d.Allowed {
		return "allow"
	}
	return fmt.Sprintf("deny(%s: %s)", d.Reason, strings.Join(d.Required, ","))
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason DenyReason, required []string) Decision {
	return Decision{Reason: reason, Required: required}
}

// RolePermissionSource loads the permission keys held by a role. found is false when
// the role does not exist or is inactive or deleted.
type RolePermissionSource interface {
	GrantedPermissions(ctx context.Context, roleName string) (keys []string, found bool, err error)
}

type Guard struct {
	source RolePermissionSource
	cache  *PermissionCache
}

func NewGuard(source RolePermissionSource, cache *PermissionCache) *Guard {
	if cache == nil {
		cache = NewPermissionCache(0)
	}
	return &Guard{source: source, cache: cache}
}

func (g *Guard) Cache() *PermissionCache {
	return g.cache
}

// Authorize decides whether identity holds any of the required keys. An empty
// required list always allows. The error is non-nil only when the permission
// source failed; the decision is then a denial.
func (g *Guard) Authorize(ctx context.Context, required []string, id *Identity) (Decision, error) {
	if len(required) == 0 {
		return allow(), nil
	}
	if id == nil || id.UserID == "" {
		return g.deny(nil, DenyNoIdentity, required), nil
	}

	granted, found, err := g.granted(ctx, id.Role)
	if err != nil {
		return deny(DenyInsufficientPermission, required), err
	}
	if !found || len(granted) == 0 || !Satisfies(required, granted) {
		return g.deny(id, DenyInsufficientPermission, required), nil
	}

	metrics.AuthzDecision(true, "")
	return allow(), nil
}

// GrantedPermissions exposes the cached lookup, e.g. for profile responses.
func (g *Guard) GrantedPermissions(ctx context.Context, role string) ([]string, error) {
	keys, _, err := g.granted(ctx, role)
	return keys, err
}

func (g *Guard) granted(ctx context.Context, role string) ([]string, bool, error) {
	if role == "" {
		return nil, false, nil
	}
	if keys, found, ok := g.cache.Get(role); ok {
		return keys, found, nil
	}
	gen := g.cache.Generation()
	keys, found, err := g.source.GrantedPermissions(ctx, role)
	if err != nil {
		return nil, false, fmt.Errorf("load permissions for role %q: %w", role, err)
	}
	g.cache.SetIfCurrent(gen, role, keys, found)
	return keys, found, nil
}

func (g *Guard) deny(id *Identity, reason DenyReason, required []string) Decision {
	metrics.AuthzDecision(false, string(reason))
	if id != nil {
		log.Printf("authz: deny user=%s role=%s required=%s reason=%s", id.UserID, id.Role, strings.Join(required, ","), reason)
	} else {
		log.Printf("authz: deny anonymous required=%s reason=%s", strings.Join(required, ","), reason)
	}
	return deny(reason, required)
}
