package service

import (
	"context"
	"fmt"

	"adminauth/internal/model"
	"adminauth/internal/rbac"
)

// SeedAccessControl syncs the permission table with rbac.Declarations and creates the
// built-in roles when missing. The outcome is written to the audit trail.
func SeedAccessControl(ctx context.Context, seeder *rbac.Seeder, defaultRole string, audit AuditService) (rbac.SeedReport, error) {
	report, err := seeder.Run(ctx, rbac.Declarations)
	if err != nil {
		return rbac.SeedReport{}, fmt.Errorf("seed permissions: %w", err)
	}
	roles, err := seeder.EnsureRoles(ctx, rbac.DefaultRoles(rbac.Declarations, defaultRole))
	if err != nil {
		return report, fmt.Errorf("seed roles: %w", err)
	}

	if audit != nil && (report.Created > 0 || report.Updated > 0 || roles > 0) {
		audit.Record(ctx, AuditEntry{
			Action:     model.ActionPermissionsSeeded,
			EntityName: "permissions",
			Details: map[string]any{
				"created":       report.Created,
				"updated":       report.Updated,
				"unchanged":     report.Unchanged,
				"roles_created": roles,
			},
		})
	}
	return report, nil
}
