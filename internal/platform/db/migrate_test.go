package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreEmbeddedInOrder(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, "0001_rbac", migrations[0].Version)
	for i := 1; i < len(migrations); i++ {
		assert.Less(t, migrations[i-1].Version, migrations[i].Version)
	}
	for _, table := range []string{"users", "profiles", "roles", "permissions", "user_roles", "role_permissions", "auth_sessions", "audit_logs"} {
		assert.True(t, strings.Contains(migrations[0].SQL, "CREATE TABLE IF NOT EXISTS "+table+" ("), table)
	}
}
