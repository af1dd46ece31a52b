package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"grader": {
		"bank:grade",
		"attachment:read",
	},
	"editor": {
		"bank:convert",
		"bank:grade",
		"attachment:read",
		"attachment:write",
	},
	"admin": {
		"*", // everything
	},
}
