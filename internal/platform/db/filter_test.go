package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterBindsInOrder(t *testing.T) {
	var f Filter
	f.AddRaw("u.deleted = FALSE")
	f.Add("(u.user_name ILIKE ? OR p.nick_name ILIKE ?)", "%ad%")
	f.Add("u.disabled = ?", true)
	limit := f.Bind(20)

	assert.Equal(t, " WHERE u.deleted = FALSE AND (u.user_name ILIKE $1 OR p.nick_name ILIKE $1) AND u.disabled = $2", f.Where())
	assert.Equal(t, "$3", limit)
	assert.Equal(t, []any{"%ad%", true, 20}, f.Args())
}

func TestFilterEmpty(t *testing.T) {
	var f Filter
	assert.Empty(t, f.Where())
	assert.Empty(t, f.Args())
}
