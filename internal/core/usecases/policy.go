package usecases

import "github.com/samirrijal/geodash/internal/core/domain"

// Row-level policy. Repositories apply the same rules as SQL predicates.

func canRead(s domain.Scope, r *domain.Record) bool {
	return s.Role == domain.RoleAdmin || r.OwnerID == s.PrincipalID || r.Visibility == domain.VisibilityShared
}

func canCreate(s domain.Scope) bool {
	return s.Role == domain.RoleAdmin || s.Role == domain.RoleEditor
}

func canWrite(s domain.Scope, r *domain.Record) bool {
	switch s.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleEditor:
		return r.OwnerID == s.PrincipalID
	}
	return false
}

// CanEdit reports whether scope may modify r. Views use it to decide which
// controls to show; the services still enforce it.
func CanEdit(s domain.Scope, r *domain.Record) bool { return canWrite(s, r) }

// CanCreate reports whether scope may add records.
func CanCreate(s domain.Scope) bool { return canCreate(s) }
