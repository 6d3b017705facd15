package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role groups permissions; users receive permissions only through their role
type Role struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string       `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	IsSystem    bool         `gorm:"not null" json:"is_system"` // Prevent deletion of built-in roles
	IsActive    bool         `gorm:"not null" json:"is_active"`
	IsDeleted   bool         `gorm:"not null;index" json:"is_deleted"`
	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func (r *Role) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// PermissionKeys returns the keys referenced by the role, in load order
func (r *Role) PermissionKeys() []string {
	keys := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		keys = append(keys, p.Key)
	}
	return keys
}

// Permission is a single grantable capability identified by a dot-namespaced key,
// e.g. "user.view", or a category wildcard such as "user.*".
type Permission struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Key         string    `gorm:"type:varchar(150);uniqueIndex;not null" json:"key"`
	Description string    `gorm:"type:varchar(255);not null" json:"description"`
	IsActive    bool      `gorm:"not null" json:"is_active"`
	IsDeleted   bool      `gorm:"not null;index" json:"is_deleted"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (p *Permission) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Assignable reports whether the permission may be attached to a role right now
func (p *Permission) Assignable() bool {
	return p.IsActive && !p.IsDeleted
}
