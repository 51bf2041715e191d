package authstate

import (
	"github.com/goliatone/go-router"
)

var TemplateUserKey = "current_user"

// TemplateHelpers returns helper functions and data for the view engine's
// global data, so templates can branch on authentication state.
//
// In templates:
//
//	{% if current_user %}
//	{% if has_role(current_user, "admin") %}
//	{% if is_authenticated(current_user) %}
func TemplateHelpers() map[string]any {
	return map[string]any{
		"is_authenticated": isAuthenticatedHelper,
		"has_role":         hasRoleHelper,
		"is_admin":         isAdminHelper,

		// Role constants for easy template access
		"roles": map[string]string{
			"admin":      string(RoleAdmin),
			"technician": string(RoleTechnician),
		},
	}
}

// TemplateHelpersWithUser returns template helpers with a specific user set
// as current_user.
func TemplateHelpersWithUser(user *User) map[string]any {
	helpers := TemplateHelpers()
	helpers[TemplateUserKey] = user
	return helpers
}

// MergeTemplateData folds the current user and auth helpers into
// request-scoped view data. Keys already present in data win.
func MergeTemplateData(ctx router.Context, data router.ViewContext) router.ViewContext {
	if data == nil {
		data = router.ViewContext{}
	}

	for key, value := range TemplateHelpers() {
		if _, exists := data[key]; !exists {
			data[key] = value
		}
	}

	if _, exists := data[TemplateUserKey]; !exists {
		if user := ctx.Locals(TemplateUserKey); user != nil {
			data[TemplateUserKey] = user
		}
	}

	return data
}

// GetTemplateUser extracts the current user from router context for template
// usage.
func GetTemplateUser(ctx router.Context, userKey string) (any, bool) {
	if userKey == "" {
		userKey = TemplateUserKey
	}

	user := ctx.Locals(userKey)
	return user, user != nil
}

// isAuthenticatedHelper checks if the provided user object is not nil
func isAuthenticatedHelper(user any) bool {
	if user == nil {
		return false
	}

	switch u := user.(type) {
	case *User:
		return u != nil
	case User:
		return true
	case map[string]any:
		// Handle JSON-converted user objects
		return len(u) > 0
	default:
		return false
	}
}

// hasRoleHelper checks if the user has the specified role
func hasRoleHelper(user any, role string) bool {
	target := Role(role)

	switch u := user.(type) {
	case *User:
		if u == nil {
			return false
		}
		return u.Role.Allows(target)
	case User:
		return u.Role.Allows(target)
	case map[string]any:
		// Handle JSON-converted user objects
		if raw, exists := u["role"]; exists {
			if roleStr, ok := raw.(string); ok {
				return Role(roleStr).Allows(target)
			}
		}
		return false
	default:
		return false
	}
}

func isAdminHelper(user any) bool {
	return hasRoleHelper(user, string(RoleAdmin))
}
