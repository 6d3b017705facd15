package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionRegister          = "REGISTER"
	ActionReactivate        = "REACTIVATE"
	ActionLoginSuccess      = "LOGIN_SUCCESS"
	ActionLoginFailure      = "LOGIN_FAILURE"
	ActionLogout            = "LOGOUT"
	ActionTokenRefresh      = "TOKEN_REFRESH"
	ActionEmailVerified     = "EMAIL_VERIFIED"
	ActionPasswordReset     = "PASSWORD_RESET"
	ActionAccessDenied      = "ACCESS_DENIED"
	ActionCreateRole        = "CREATE_ROLE"
	ActionUpdateRole        = "UPDATE_ROLE"
	ActionDeleteRole        = "DELETE_ROLE"
	ActionUpdateRolePerms   = "UPDATE_ROLE_PERMISSIONS"
	ActionUpdatePermission  = "UPDATE_PERMISSION"
	ActionDeletePermission  = "DELETE_PERMISSION"
	ActionDeleteUser        = "DELETE_USER"
	ActionAssignUserRole    = "ASSIGN_USER_ROLE"
	ActionUpdateUserStatus  = "UPDATE_USER_STATUS"
	ActionPermissionsSeeded = "PERMISSIONS_SEEDED"
)

// AuditLog tracks Who, What, and When for security relevant events.
// Details holds a small JSON object; request bodies are never stored.
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for anonymous or system events
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:text" json:"details"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
