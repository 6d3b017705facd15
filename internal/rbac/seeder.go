package rbac

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"adminauth/internal/metrics"
	"adminauth/internal/model"
)

type PermissionStore interface {
	FindByKey(ctx context.Context, key string) (*model.Permission, error)
	Create(ctx context.Context, perm *model.Permission) error
	UpdateDescription(ctx context.Context, id uuid.UUID, description string) error
}

type RoleStore interface {
	FindByName(ctx context.Context, name string) (*model.Role, error)
	Create(ctx context.Context, role *model.Role) error
	ReplacePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error
}

// TxRunner runs fn inside a single database transaction carried by txCtx.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

type SeedReport struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

// RoleDefinition describes a built-in role created on first boot.
type RoleDefinition struct {
	Name        string
	Description string
	Permissions []string
}

// DefaultRoles returns the built-in roles: admin holds every category wildcard of
// decls, user may only see its own profile.
func DefaultRoles(decls []Declaration, defaultRole string) []RoleDefinition {
	if defaultRole == "" {
		defaultRole = "user"
	}
	return []RoleDefinition{
		{Name: "admin", Description: "Full administrative access", Permissions: CategoryWildcards(decls)},
		{Name: defaultRole, Description: "Default role for self-registered accounts", Permissions: []string{WildcardFor(Category(PermProfileView))}},
	}
}

type Seeder struct {
	perms PermissionStore
	roles RoleStore
	tx    TxRunner
}

func NewSeeder(perms PermissionStore, roles RoleStore, tx TxRunner) *Seeder {
	return &Seeder{perms: perms, roles: roles, tx: tx}
}

// Run brings the permissions table in line with decls. Keys are created when absent
// and descriptions refreshed when they drift. Nothing is ever deleted or deactivated,
// and soft-deleted keys stay deleted.
func (s *Seeder) Run(ctx context.Context, decls []Declaration) (SeedReport, error) {
	var report SeedReport
	expanded := Expand(decls)

	err := s.inTx(ctx, func(ctx context.Context) error {
		report = SeedReport{}
		for _, d := range expanded {
			existing, err := s.perms.FindByKey(ctx, d.Key)
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				p := &model.Permission{Key: d.Key, Description: d.Description, IsActive: true}
				if err := s.perms.Create(ctx, p); err != nil {
					return fmt.Errorf("failed to seed permission '%s': %w", d.Key, err)
				}
				report.Created++
			case err != nil:
				return fmt.Errorf("failed to load permission '%s': %w", d.Key, err)
			case !existing.IsDeleted && existing.Description != d.Description:
				if err := s.perms.UpdateDescription(ctx, existing.ID, d.Description); err != nil {
					return fmt.Errorf("failed to update permission '%s': %w", d.Key, err)
				}
				report.Updated++
			default:
				report.Unchanged++
			}
		}
		return nil
	})
	if err != nil {
		return SeedReport{}, err
	}

	metrics.SeedResult(report.Created, report.Updated, report.Unchanged)
	log.Printf("seeder: permissions created=%d updated=%d unchanged=%d", report.Created, report.Updated, report.Unchanged)
	return report, nil
}

// EnsureRoles creates each role that does not exist yet, soft-deleted ones included.
// Existing roles are left exactly as administrators configured them.
func (s *Seeder) EnsureRoles(ctx context.Context, defs []RoleDefinition) (int, error) {
	created := 0
	err := s.inTx(ctx, func(ctx context.Context) error {
		created = 0
		for _, def := range defs {
			_, err := s.roles.FindByName(ctx, def.Name)
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to load role '%s': %w", def.Name, err)
			}

			ids := make([]uuid.UUID, 0, len(def.Permissions))
			for _, key := range def.Permissions {
				p, err := s.perms.FindByKey(ctx, key)
				if err != nil {
					return fmt.Errorf("role '%s' references permission '%s': %w", def.Name, key, err)
				}
				ids = append(ids, p.ID)
			}

			role := &model.Role{Name: def.Name, Description: def.Description, IsSystem: true, IsActive: true}
			if err := s.roles.Create(ctx, role); err != nil {
				return fmt.Errorf("failed to seed role '%s': %w", def.Name, err)
			}
			if err := s.roles.ReplacePermissions(ctx, role.ID, ids); err != nil {
				return fmt.Errorf("failed to assign permissions to role '%s': %w", def.Name, err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if created > 0 {
		log.Printf("seeder: created %d built-in roles", created)
	}
	return created, nil
}

func (s *Seeder) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.RunInTx(ctx, fn)
}
