package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"adminauth/internal/model"
	"adminauth/internal/rbac"
	"adminauth/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateRoleRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"` // permission keys, e.g. "user.view" or "user.*"
}

type UpdateRoleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

type UpdateRolePermissionsRequest struct {
	Permissions []string `json:"permissions" binding:"required"`
}

type UpdatePermissionRequest struct {
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

type RoleResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	IsSystem    bool                 `json:"is_system"`
	IsActive    bool                 `json:"is_active"`
	IsDeleted   bool                 `json:"is_deleted"`
	Permissions []PermissionResponse `json:"permissions"`
	CreatedAt   string               `json:"created_at"`
}

type PermissionResponse struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Category    string `json:"category"`
	Description string `json:"description"`
	IsWildcard  bool   `json:"is_wildcard"`
	IsActive    bool   `json:"is_active"`
	IsDeleted   bool   `json:"is_deleted"`
}

// --- Interface ---

// RoleService administers roles and the permission catalog. Every mutation drops the
// affected cached grants and tells connected admin clients to refetch.
type RoleService interface {
	ListRoles(ctx context.Context) ([]RoleResponse, error)
	GetRole(ctx context.Context, id string) (*RoleResponse, error)
	CreateRole(ctx context.Context, actorID string, req CreateRoleRequest) (*RoleResponse, error)
	UpdateRole(ctx context.Context, actorID, id string, req UpdateRoleRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, actorID, id string) error
	UpdateRolePermissions(ctx context.Context, actorID, roleID string, req UpdateRolePermissionsRequest) (*RoleResponse, error)
	ListPermissions(ctx context.Context, includeDeleted bool) ([]PermissionResponse, error)
	UpdatePermission(ctx context.Context, actorID, id string, req UpdatePermissionRequest) (*PermissionResponse, error)
	DeletePermission(ctx context.Context, actorID, id string) error
}

type roleService struct {
	roles    repository.RoleRepository
	perms    repository.PermissionRepository
	users    repository.UserRepository
	tx       repository.TransactionManager
	cache    *rbac.PermissionCache
	audit    AuditService
	notifier Notifier
}

func NewRoleService(
	roles repository.RoleRepository,
	perms repository.PermissionRepository,
	users repository.UserRepository,
	tx repository.TransactionManager,
	cache *rbac.PermissionCache,
	audit AuditService,
	notifier Notifier,
) RoleService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if cache == nil {
		cache = rbac.NewPermissionCache(0)
	}
	return &roleService{roles: roles, perms: perms, users: users, tx: tx, cache: cache, audit: audit, notifier: notifier}
}

var roleNamePattern = regexp.MustCompile(`^[a-z0-9_-]{2,50}$`)

func normalizeRoleName(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if !roleNamePattern.MatchString(n) {
		return "", ErrInvalidRoleName
	}
	return n, nil
}

// --- Roles ---

func (s *roleService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	roles, err := s.roles.List(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) GetRole(ctx context.Context, id string) (*RoleResponse, error) {
	role, err := s.loadRole(ctx, id)
	if err != nil {
		return nil, err
	}
	res := toRoleResponse(*role)
	return &res, nil
}

func (s *roleService) CreateRole(ctx context.Context, actorID string, req CreateRoleRequest) (*RoleResponse, error) {
	name, err := normalizeRoleName(req.Name)
	if err != nil {
		return nil, err
	}

	var role *model.Role
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.roles.FindByName(txCtx, name); err == nil {
			return ErrRoleExists
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		ids, err := s.assignable(txCtx, req.Permissions)
		if err != nil {
			return err
		}

		role = &model.Role{Name: name, Description: strings.TrimSpace(req.Description), IsActive: true}
		if err := s.roles.Create(txCtx, role); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrRoleExists
			}
			return err
		}
		if err := s.roles.ReplacePermissions(txCtx, role.ID, ids); err != nil {
			return err
		}
		role, err = s.roles.FindByID(txCtx, role.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     model.ActionCreateRole,
		EntityID:   role.ID.String(),
		EntityName: role.Name,
		Details:    map[string]any{"permissions": role.PermissionKeys()},
	})
	s.changed(role.Name)
	res := toRoleResponse(*role)
	return &res, nil
}

func (s *roleService) UpdateRole(ctx context.Context, actorID, id string, req UpdateRoleRequest) (*RoleResponse, error) {
	role, err := s.loadRole(ctx, id)
	if err != nil {
		return nil, err
	}
	oldName := role.Name

	if req.Name != nil {
		name, err := normalizeRoleName(*req.Name)
		if err != nil {
			return nil, err
		}
		if name != role.Name {
			if role.IsSystem {
				return nil, ErrSystemRole
			}
			if _, err := s.roles.FindByName(ctx, name); err == nil {
				return nil, ErrRoleExists
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
			role.Name = name
		}
	}
	if req.Description != nil {
		role.Description = strings.TrimSpace(*req.Description)
	}
	if req.IsActive != nil {
		if role.IsSystem && !*req.IsActive {
			return nil, ErrSystemRole
		}
		role.IsActive = *req.IsActive
	}

	if err := s.roles.Update(ctx, role); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrRoleExists
		}
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     model.ActionUpdateRole,
		EntityID:   role.ID.String(),
		EntityName: role.Name,
		Details:    map[string]any{"previous_name": oldName, "is_active": role.IsActive},
	})
	s.changed(oldName, role.Name)
	res := toRoleResponse(*role)
	return &res, nil
}

func (s *roleService) DeleteRole(ctx context.Context, actorID, id string) error {
	role, err := s.loadRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return ErrSystemRole
	}
	n, err := s.users.CountByRole(ctx, role.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrRoleInUse.WithDetail(fmt.Sprintf("%d users", n))
	}

	if err := s.roles.SoftDelete(ctx, role.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRoleNotFound
		}
		return err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     model.ActionDeleteRole,
		EntityID:   role.ID.String(),
		EntityName: role.Name,
	})
	s.changed(role.Name)
	return nil
}

// UpdateRolePermissions replaces the role's permission set. Every key must name an
// active, non-deleted permission at this moment; later deactivation does not remove it.
func (s *roleService) UpdateRolePermissions(ctx context.Context, actorID, roleID string, req UpdateRolePermissionsRequest) (*RoleResponse, error) {
	role, err := s.loadRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	before := role.PermissionKeys()

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		ids, err := s.assignable(txCtx, req.Permissions)
		if err != nil {
			return err
		}
		if err := s.roles.ReplacePermissions(txCtx, role.ID, ids); err != nil {
			return err
		}
		role, err = s.roles.FindByID(txCtx, role.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     model.ActionUpdateRolePerms,
		EntityID:   role.ID.String(),
		EntityName: role.Name,
		Details:    map[string]any{"before": before, "after": role.PermissionKeys()},
	})
	s.changed(role.Name)
	res := toRoleResponse(*role)
	return &res, nil
}

// --- Permissions ---

func (s *roleService) ListPermissions(ctx context.Context, includeDeleted bool) ([]PermissionResponse, error) {
	perms, err := s.perms.List(ctx, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}
	res := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		res = append(res, toPermissionResponse(p))
	}
	return res, nil
}

func (s *roleService) UpdatePermission(ctx context.Context, actorID, id string, req UpdatePermissionRequest) (*PermissionResponse, error) {
	perm, err := s.loadPermission(ctx, id)
	if err != nil {
		return nil, err
	}
	if perm.IsDeleted {
		return nil, ErrPermissionNotFound
	}
	if req.Description != nil {
		perm.Description = strings.TrimSpace(*req.Description)
	}
	if req.IsActive != nil {
		perm.IsActive = *req.IsActive
	}
	if err := s.perms.Update(ctx, perm); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     model.ActionUpdatePermission,
		EntityID:   perm.ID.String(),
		EntityName: perm.Key,
		Details:    map[string]any{"is_active": perm.IsActive},
	})
	s.changedAll()
	res := toPermissionResponse(*perm)
	return &res, nil
}

// DeletePermission soft-deletes a catalog entry. The seeder will not bring it back;
// roles that already hold it keep it until edited.
func (s *roleService) DeletePermission(ctx context.Context, actorID, id string) error {
	perm, err := s.loadPermission(ctx, id)
	if err != nil {
		return err
	}
	if perm.IsDeleted {
		return ErrPermissionNotFound
	}
	perm.IsDeleted = true
	perm.IsActive = false
	if err := s.perms.Update(ctx, perm); err != nil {
		return err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     model.ActionDeletePermission,
		EntityID:   perm.ID.String(),
		EntityName: perm.Key,
	})
	s.changedAll()
	return nil
}

// --- helpers ---

func (s *roleService) loadRole(ctx context.Context, id string) (*model.Role, error) {
	rid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	role, err := s.roles.FindByID(ctx, rid)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, err
	}
	if role.IsDeleted {
		return nil, ErrRoleNotFound
	}
	return role, nil
}

func (s *roleService) loadPermission(ctx context.Context, id string) (*model.Permission, error) {
	pid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	perm, err := s.perms.FindByID(ctx, pid)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPermissionNotFound
	}
	return perm, err
}

// assignable resolves keys to permission IDs, refusing any key that is unknown,
// inactive or deleted. Duplicates are ignored.
func (s *roleService) assignable(ctx context.Context, keys []string) ([]uuid.UUID, error) {
	wanted := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		wanted = append(wanted, k)
	}
	if len(wanted) == 0 {
		return nil, nil
	}

	perms, err := s.perms.FindByKeys(ctx, wanted)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]model.Permission, len(perms))
	for _, p := range perms {
		byKey[p.Key] = p
	}

	ids := make([]uuid.UUID, 0, len(wanted))
	for _, k := range wanted {
		p, ok := byKey[k]
		if !ok || !p.Assignable() {
			return nil, ErrPermissionNotAssignable.WithDetail(k)
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (s *roleService) changed(roleNames ...string) {
	for _, n := range roleNames {
		s.cache.Invalidate(n)
	}
	s.notifier.Notify(EventPermissionsChanged, map[string]any{"roles": roleNames})
}

func (s *roleService) changedAll() {
	s.cache.InvalidateAll()
	s.notifier.Notify(EventPermissionsChanged, map[string]any{"roles": "*"})
}

func toRoleResponse(r model.Role) RoleResponse {
	perms := make([]PermissionResponse, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, toPermissionResponse(p))
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Key < perms[j].Key })

	return RoleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		IsActive:    r.IsActive,
		IsDeleted:   r.IsDeleted,
		Permissions: perms,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
}

func toPermissionResponse(p model.Permission) PermissionResponse {
	return PermissionResponse{
		ID:          p.ID.String(),
		Key:         p.Key,
		Category:    rbac.Category(p.Key),
		Description: p.Description,
		IsWildcard:  rbac.IsWildcard(p.Key),
		IsActive:    p.IsActive,
		IsDeleted:   p.IsDeleted,
	}
}
