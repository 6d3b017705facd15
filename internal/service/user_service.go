package service

import (
	"context"
	"errors"
	"time"

	"adminauth/internal/model"
	"adminauth/internal/repository"
	"adminauth/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UpdateUserStatusRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

type AssignRoleRequest struct {
	RoleID string `json:"role_id" binding:"required,uuid"`
}

type ListUsersQuery struct {
	Search         string `form:"search"`
	RoleID         string `form:"role_id" binding:"omitempty,uuid"`
	IncludeDeleted bool   `form:"include_deleted"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	RoleID       uuid.UUID  `json:"role_id"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"is_active"`
	IsDeleted    bool       `json:"is_deleted"`
	IsVerified   bool       `json:"is_verified"`
	VerifiedAt   *time.Time `json:"verified_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	ProfileImage string     `json:"profile_image"`
	CreatedAt    string     `json:"created_at"`
	UpdatedAt    string     `json:"updated_at"`
}

// UserService covers account administration. Self-service flows live in AuthService.
type UserService interface {
	GetUserByID(ctx context.Context, id string) (*UserResponse, error)
	ListUsers(ctx context.Context, q ListUsersQuery, p pagination.Params) (pagination.Page[UserResponse], error)
	SetUserActive(ctx context.Context, actorID, id string, active bool) (*UserResponse, error)
	AssignRole(ctx context.Context, actorID, id, roleID string) (*UserResponse, error)
	DeleteUser(ctx context.Context, actorID, id string) error
}

type userService struct {
	users    repository.UserRepository
	roles    repository.RoleRepository
	audit    AuditService
	notifier Notifier
}

// NewUserService returns a new instance of UserService
func NewUserService(users repository.UserRepository, roles repository.RoleRepository, audit AuditService, notifier Notifier) UserService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &userService{users: users, roles: roles, audit: audit, notifier: notifier}
}

// Helper: parse model to standard json API response
func toUserResponse(user *model.User) *UserResponse {
	res := &UserResponse{
		ID:           user.ID,
		Username:     user.Username,
		Email:        user.Email,
		RoleID:       user.RoleID,
		IsActive:     user.IsActive,
		IsDeleted:    user.IsDeleted,
		IsVerified:   user.IsVerified(),
		VerifiedAt:   user.VerifiedAt,
		LastLoginAt:  user.LastLoginAt,
		ProfileImage: user.ProfileImage,
		CreatedAt:    user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    user.UpdatedAt.Format(time.RFC3339),
	}
	if user.Role != nil {
		res.Role = user.Role.Name
	}
	return res
}

func parseID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, ErrInvalidID
	}
	return parsed, nil
}

func (s *userService) load(ctx context.Context, id string) (*model.User, error) {
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, uid)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *userService) GetUserByID(ctx context.Context, id string) (*UserResponse, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return toUserResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, q ListUsersQuery, p pagination.Params) (pagination.Page[UserResponse], error) {
	filter := repository.UserFilter{Search: q.Search, IncludeDeleted: q.IncludeDeleted}
	if q.RoleID != "" {
		rid, err := parseID(q.RoleID)
		if err != nil {
			return pagination.Page[UserResponse]{}, err
		}
		filter.RoleID = &rid
	}

	users, total, err := s.users.List(ctx, filter, p.Page, p.Limit)
	if err != nil {
		return pagination.Page[UserResponse]{}, err
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *toUserResponse(&users[i]))
	}
	return pagination.NewPage(responses, total, p), nil
}

// SetUserActive locks or unlocks an account. Locked accounts cannot log in or refresh.
func (s *userService) SetUserActive(ctx context.Context, actorID, id string, active bool) (*UserResponse, error) {
	if actorID == id && !active {
		return nil, ErrSelfAction
	}
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.IsDeleted {
		return nil, ErrUserNotFound
	}

	user.IsActive = active
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     model.ActionUpdateUserStatus,
		EntityID:   user.ID.String(),
		EntityName: user.Username,
		Details:    map[string]any{"is_active": active},
	})
	s.notifier.Notify(EventUserChanged, map[string]any{"user_id": user.ID.String()})
	return toUserResponse(user), nil
}

// AssignRole moves the user to another role. Access tokens already issued keep the old
// role name until they expire; the next refresh picks up the new one.
func (s *userService) AssignRole(ctx context.Context, actorID, id, roleID string) (*UserResponse, error) {
	rid, err := parseID(roleID)
	if err != nil {
		return nil, err
	}
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.IsDeleted {
		return nil, ErrUserNotFound
	}

	role, err := s.roles.FindByID(ctx, rid)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, err
	}
	if role.IsDeleted || !role.IsActive {
		return nil, ErrRoleNotFound
	}

	previous := ""
	if user.Role != nil {
		previous = user.Role.Name
	}
	user.RoleID = role.ID
	user.Role = role
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     model.ActionAssignUserRole,
		EntityID:   user.ID.String(),
		EntityName: user.Username,
		Details:    map[string]any{"from": previous, "to": role.Name},
	})
	s.notifier.Notify(EventUserChanged, map[string]any{"user_id": user.ID.String(), "role": role.Name})
	return toUserResponse(user), nil
}

// DeleteUser soft-deletes the account. Registering again with the same email or
// username reactivates it.
func (s *userService) DeleteUser(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return ErrSelfAction
	}
	user, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if user.IsDeleted {
		return ErrUserNotFound
	}

	user.IsDeleted = true
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     model.ActionDeleteUser,
		EntityID:   user.ID.String(),
		EntityName: user.Username,
	})
	s.notifier.Notify(EventSessionRevoked, map[string]any{"user_id": user.ID.String()})
	return nil
}
