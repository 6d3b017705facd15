package repository

import (
	"context"
	"errors"

	"adminauth/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RoleRepository interface {
	Create(ctx context.Context, role *model.Role) error
	Update(ctx context.Context, role *model.Role) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Role, error)
	FindByName(ctx context.Context, name string) (*model.Role, error)
	List(ctx context.Context, includeDeleted bool) ([]model.Role, error)
	ReplacePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error
	GrantedPermissions(ctx context.Context, roleName string) ([]string, bool, error)
}

type roleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) Create(ctx context.Context, role *model.Role) error {
	return GetDB(ctx, r.db).Omit("Permissions").Create(role).Error
}

func (r *roleRepository) Update(ctx context.Context, role *model.Role) error {
	return GetDB(ctx, r.db).Omit("Permissions").Save(role).Error
}

func (r *roleRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res := GetDB(ctx, r.db).Model(&model.Role{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]any{"is_deleted": true, "is_active": false})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *roleRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	var role model.Role
	if err := GetDB(ctx, r.db).Preload("Permissions").First(&role, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

// FindByName matches deleted roles too; callers decide what a deleted role means.
func (r *roleRepository) FindByName(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	if err := GetDB(ctx, r.db).Preload("Permissions").Where("name = ?", name).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) List(ctx context.Context, includeDeleted bool) ([]model.Role, error) {
	var roles []model.Role
	q := GetDB(ctx, r.db).Preload("Permissions").Order("created_at asc")
	if !includeDeleted {
		q = q.Where("is_deleted = ?", false)
	}
	if err := q.Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *roleRepository) ReplacePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	db := GetDB(ctx, r.db)
	var role model.Role
	if err := db.First(&role, "id = ?", roleID).Error; err != nil {
		return err
	}

	if len(permissionIDs) == 0 {
		return db.Model(&role).Association("Permissions").Clear()
	}

	var perms []model.Permission
	if err := db.Where("id IN ?", permissionIDs).Find(&perms).Error; err != nil {
		return err
	}
	return db.Model(&role).Association("Permissions").Replace(perms)
}

// GrantedPermissions returns every key linked to the role. found is false when the role
// is missing, inactive or deleted. Permissions deactivated after assignment still count:
// assignability is enforced when the role is edited, not on each request.
func (r *roleRepository) GrantedPermissions(ctx context.Context, roleName string) ([]string, bool, error) {
	var role model.Role
	err := GetDB(ctx, r.db).Preload("Permissions").Where("name = ?", roleName).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !role.IsActive || role.IsDeleted {
		return nil, false, nil
	}
	return role.PermissionKeys(), true, nil
}
