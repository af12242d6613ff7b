package rbac

const (
	permissionsKeyPrefix = "permissions:"
	permissionsPattern   = permissionsKeyPrefix + "*"
	// versionKey lives outside the permissions: namespace so sweeps never touch it.
	versionKey = "rbac:permissions:version"
	// emptyMarker lets an empty permission set be cached; Redis drops empty sets.
	emptyMarker = ""
)

// PermissionsKey returns the cache key holding a user's effective permission set.
func PermissionsKey(userID string) string {
	return permissionsKeyPrefix + userID
}
