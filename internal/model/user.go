package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the identity entity. Exactly one role per user; soft deletion is a flag so that a
// later registration with the same email or username can reactivate the row.
type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Username     string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	Email        string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"` // always lower-cased
	PasswordHash string     `gorm:"type:varchar(255);not null" json:"-"`                 // never serialized
	RoleID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"role_id"`
	Role         *Role      `gorm:"foreignKey:RoleID" json:"role,omitempty"`
	IsActive     bool       `gorm:"not null" json:"is_active"`
	IsDeleted    bool       `gorm:"not null;index" json:"is_deleted"`
	VerifiedAt   *time.Time `json:"verified_at"` // nil until the email address is confirmed
	LastLoginAt  *time.Time `json:"last_login_at"`
	ProfileImage string     `gorm:"type:varchar(512)" json:"profile_image"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// IsVerified reports whether the email address has been confirmed.
func (u *User) IsVerified() bool {
	return u.VerifiedAt != nil
}
