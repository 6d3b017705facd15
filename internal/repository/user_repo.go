package repository

import (
	"adminauth/internal/model"
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository defines the interface for data access of User entities
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByEmailOrUsername(ctx context.Context, email, username string) ([]model.User, error)
	List(ctx context.Context, filter UserFilter, page, limit int) ([]model.User, int64, error)
	CountByRole(ctx context.Context, roleID uuid.UUID) (int64, error)
	Update(ctx context.Context, user *model.User) error
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type UserFilter struct {
	Search         string
	RoleID         *uuid.UUID
	IncludeDeleted bool
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new instance of UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Omit("Role").Create(user).Error
}

func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).Preload("Role").First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByIdentifier resolves a login identifier. Anything containing '@' is an email
// (case-insensitive); everything else is a username.
func (r *userRepository) FindByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	identifier = strings.TrimSpace(identifier)
	q := GetDB(ctx, r.db).Preload("Role")
	if strings.Contains(identifier, "@") {
		q = q.Where("email = ?", strings.ToLower(identifier))
	} else {
		q = q.Where("username = ?", identifier)
	}
	var user model.User
	if err := q.First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmailOrUsername returns every row, deleted ones included, that collides with
// either value in either column. Registration uses it to tell conflicts from reactivations.
func (r *userRepository) FindByEmailOrUsername(ctx context.Context, email, username string) ([]model.User, error) {
	values := []string{strings.ToLower(email), username}
	var users []model.User
	err := GetDB(ctx, r.db).
		Where("email IN ? OR username IN ?", values, values).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) List(ctx context.Context, filter UserFilter, page, limit int) ([]model.User, int64, error) {
	var users []model.User
	var total int64

	q := GetDB(ctx, r.db).Model(&model.User{})
	if !filter.IncludeDeleted {
		q = q.Where("is_deleted = ?", false)
	}
	if filter.RoleID != nil {
		q = q.Where("role_id = ?", *filter.RoleID)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("(LOWER(username) LIKE ? OR email LIKE ?)", like, like)
	}

	q = q.Session(&gorm.Session{})

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := q.Preload("Role").Order("created_at desc").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

func (r *userRepository) CountByRole(ctx context.Context, roleID uuid.UUID) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.User{}).
		Where("role_id = ? AND is_deleted = ?", roleID, false).
		Count(&n).Error
	return n, err
}

// Update writes every column, so false booleans and nil timestamps are persisted too.
func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Omit("Role").Save(user).Error
}

func (r *userRepository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return GetDB(ctx, r.db).Model(&model.User{}).Where("id = ?", id).Update("last_login_at", at).Error
}
