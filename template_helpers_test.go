package authstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateHelpersExposeRoleConstants(t *testing.T) {
	helpers := TemplateHelpers()

	roles, ok := helpers["roles"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "admin", roles["admin"])
	assert.Equal(t, "technician", roles["technician"])
}

func TestTemplateHelpersWithUser(t *testing.T) {
	user := &User{ID: "user-1", Role: RoleAdmin}
	helpers := TemplateHelpersWithUser(user)
	assert.Equal(t, user, helpers[TemplateUserKey])
}

func TestIsAuthenticatedHelper(t *testing.T) {
	helpers := TemplateHelpers()
	isAuthenticated, ok := helpers["is_authenticated"].(func(any) bool)
	require.True(t, ok)

	assert.True(t, isAuthenticated(&User{ID: "user-1"}))
	assert.True(t, isAuthenticated(User{ID: "user-1"}))
	assert.True(t, isAuthenticated(map[string]any{"id": "user-1"}))

	assert.False(t, isAuthenticated(nil))
	assert.False(t, isAuthenticated((*User)(nil)))
	assert.False(t, isAuthenticated(map[string]any{}))
	assert.False(t, isAuthenticated("user-1"))
}

func TestHasRoleHelper(t *testing.T) {
	helpers := TemplateHelpers()
	hasRole, ok := helpers["has_role"].(func(any, string) bool)
	require.True(t, ok)

	assert.True(t, hasRole(&User{Role: RoleAdmin}, "admin"))
	assert.True(t, hasRole(User{Role: RoleTechnician}, "technician"))
	assert.True(t, hasRole(map[string]any{"role": "admin"}, "admin"))
	assert.True(t, hasRole(&User{Role: RoleTechnician}, ""), "empty requirement admits any user")

	assert.False(t, hasRole(&User{Role: RoleTechnician}, "admin"))
	assert.False(t, hasRole((*User)(nil), "admin"))
	assert.False(t, hasRole(map[string]any{}, "admin"))
	assert.False(t, hasRole(nil, "admin"))
}

func TestIsAdminHelper(t *testing.T) {
	helpers := TemplateHelpers()
	isAdmin, ok := helpers["is_admin"].(func(any) bool)
	require.True(t, ok)

	assert.True(t, isAdmin(&User{Role: RoleAdmin}))
	assert.False(t, isAdmin(&User{Role: RoleTechnician}))
	assert.False(t, isAdmin(nil))
}
