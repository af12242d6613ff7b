package shared

// System management permissions.
const (
	PermUserAdd   = "system:user:add"
	PermUserEdit  = "system:user:edit"
	PermUserDel   = "system:user:del"
	PermUserQuery = "system:user:query"
	PermUserReset = "system:user:reset"

	PermRoleAdd   = "system:role:add"
	PermRoleEdit  = "system:role:edit"
	PermRoleDel   = "system:role:del"
	PermRoleQuery = "system:role:query"

	PermMenuAdd  = "system:menu:add"
	PermMenuEdit = "system:menu:edit"
	PermMenuDel  = "system:menu:del"

	PermAuditQuery = "system:audit:query"
)

// CoreScopes lists every permission identifier the API routes reference.
func CoreScopes() []string {
	return []string{
		PermUserAdd, PermUserEdit, PermUserDel, PermUserQuery, PermUserReset,
		PermRoleAdd, PermRoleEdit, PermRoleDel, PermRoleQuery,
		PermMenuAdd, PermMenuEdit, PermMenuDel,
		PermAuditQuery,
	}
}
