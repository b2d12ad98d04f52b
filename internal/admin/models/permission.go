package models

import "canopy/pkg/domain"

// Permission names one administrative capability. The set is closed.
type Permission string

const (
	PermissionManageUsers       Permission = "manage_users"
	PermissionChangeUserRoles   Permission = "change_user_roles"
	PermissionViewAuditLogs     Permission = "view_audit_logs"
	PermissionManageCredentials Permission = "manage_verifier_credentials"
	PermissionBackupRestoreData Permission = "backup_restore_data"
)

// rolePermissions is the grant table. Only admins hold administrative
// capabilities; other roles have none.
var rolePermissions = map[domain.Role][]Permission{
	domain.RoleAdmin: {
		PermissionManageUsers,
		PermissionChangeUserRoles,
		PermissionViewAuditLogs,
		PermissionManageCredentials,
		PermissionBackupRestoreData,
	},
}

// RoleHasPermission reports whether the role grants the permission.
func RoleHasPermission(role domain.Role, perm Permission) bool {
	for _, granted := range rolePermissions[role] {
		if granted == perm {
			return true
		}
	}
	return false
}
