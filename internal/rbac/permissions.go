package rbac

// Declaration is one row of the permission table: a key guarded by some route and
// the text shown to administrators.
type Declaration struct {
	Key         string
	Description string
}

// Permission keys referenced by route registration. Adding a route with a new key
// means adding it here as well; the seeder only knows what this table lists.
const (
	PermProfileView = "profile.view"

	PermUserView       = "user.view"
	PermUserUpdate     = "user.update"
	PermUserDelete     = "user.delete"
	PermUserAssignRole = "user.assign_role"

	PermRoleView             = "role.view"
	PermRoleCreate           = "role.create"
	PermRoleUpdate           = "role.update"
	PermRoleDelete           = "role.delete"
	PermRoleAssignPermission = "role.assign_permission"

	PermPermissionView   = "permission.view"
	PermPermissionUpdate = "permission.update"

	PermAuditView = "audit.view"
)

var Declarations = []Declaration{
	{PermProfileView, "View own profile and granted permissions"},

	{PermUserView, "List and view user accounts"},
	{PermUserUpdate, "Activate or deactivate user accounts"},
	{PermUserDelete, "Soft-delete user accounts"},
	{PermUserAssignRole, "Change the role of a user"},

	{PermRoleView, "List and view roles"},
	{PermRoleCreate, "Create roles"},
	{PermRoleUpdate, "Edit role name, description and status"},
	{PermRoleDelete, "Delete non-system roles"},
	{PermRoleAssignPermission, "Replace the permission set of a role"},

	{PermPermissionView, "List the permission catalog"},
	{PermPermissionUpdate, "Edit permission descriptions and status"},

	{PermAuditView, "Read the audit trail"},
}

// Expand returns decls with duplicates removed (first declaration wins) followed by one
// "<category>.*" entry per category that does not already declare its own wildcard.
func Expand(decls []Declaration) []Declaration {
	out := make([]Declaration, 0, len(decls)+8)
	seen := make(map[string]bool, len(decls))
	var categories []string
	seenCategory := make(map[string]bool)

	for _, d := range decls {
		if d.Key == "" || seen[d.Key] {
			continue
		}
		seen[d.Key] = true
		out = append(out, d)

		cat := Category(d.Key)
		if !seenCategory[cat] {
			seenCategory[cat] = true
			categories = append(categories, cat)
		}
	}

	for _, cat := range categories {
		w := WildcardFor(cat)
		if seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, Declaration{Key: w, Description: "All " + cat + " operations"})
	}
	return out
}

// CategoryWildcards lists "<category>.*" for every category in decls, in first-seen order.
func CategoryWildcards(decls []Declaration) []string {
	var out []string
	seen := make(map[string]bool)
	for _, d := range decls {
		cat := Category(d.Key)
		if d.Key == "" || seen[cat] {
			continue
		}
		seen[cat] = true
		out = append(out, WildcardFor(cat))
	}
	return out
}
