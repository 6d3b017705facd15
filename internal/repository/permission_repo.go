package repository

import (
	"context"

	"adminauth/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PermissionRepository interface {
	Create(ctx context.Context, perm *model.Permission) error
	Update(ctx context.Context, perm *model.Permission) error
	UpdateDescription(ctx context.Context, id uuid.UUID, description string) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Permission, error)
	FindByKey(ctx context.Context, key string) (*model.Permission, error)
	FindByKeys(ctx context.Context, keys []string) ([]model.Permission, error)
	List(ctx context.Context, includeDeleted bool) ([]model.Permission, error)
}

type permissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

func (r *permissionRepository) Create(ctx context.Context, perm *model.Permission) error {
	return GetDB(ctx, r.db).Create(perm).Error
}

func (r *permissionRepository) Update(ctx context.Context, perm *model.Permission) error {
	return GetDB(ctx, r.db).Save(perm).Error
}

func (r *permissionRepository) UpdateDescription(ctx context.Context, id uuid.UUID, description string) error {
	return GetDB(ctx, r.db).Model(&model.Permission{}).Where("id = ?", id).Update("description", description).Error
}

func (r *permissionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Permission, error) {
	var perm model.Permission
	if err := GetDB(ctx, r.db).First(&perm, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &perm, nil
}

func (r *permissionRepository) FindByKey(ctx context.Context, key string) (*model.Permission, error) {
	var perm model.Permission
	if err := GetDB(ctx, r.db).Where("key = ?", key).First(&perm).Error; err != nil {
		return nil, err
	}
	return &perm, nil
}

func (r *permissionRepository) FindByKeys(ctx context.Context, keys []string) ([]model.Permission, error) {
	var perms []model.Permission
	if len(keys) == 0 {
		return perms, nil
	}
	if err := GetDB(ctx, r.db).Where("key IN ?", keys).Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

func (r *permissionRepository) List(ctx context.Context, includeDeleted bool) ([]model.Permission, error) {
	var perms []model.Permission
	q := GetDB(ctx, r.db).Order("key asc")
	if !includeDeleted {
		q = q.Where("is_deleted = ?", false)
	}
	if err := q.Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}
