package rbac

import (
	"context"
	"sort"
	"strings"
)

// Checker answers permission questions for roles. Grants may be exact
// ("bank:grade"), prefix wildcards ("bank:*") or "*".
type Checker struct {
	RolePermissions map[string][]string
}

func NewChecker(rp map[string][]string) *Checker {
	if rp == nil {
		rp = RolePermissions
	}
	return &Checker{RolePermissions: rp}
}

func (c *Checker) Has(role, perm string) bool {
	for _, p := range c.RolePermissions[role] {
		if matchPerm(p, perm) {
			return true
		}
	}
	return false
}

func (c *Checker) Any(role string, perms ...string) bool {
	for _, p := range perms {
		if c.Has(role, p) {
			return true
		}
	}
	return false
}

// Grants lists the role's grants, sorted; nil for an unknown role.
func (c *Checker) Grants(role string) []string {
	perms, ok := c.RolePermissions[role]
	if !ok {
		return nil
	}
	out := append([]string(nil), perms...)
	sort.Strings(out)
	return out
}

// Grants reports the default policy's grants for role.
func Grants(role string) []string { return defaultChecker.Grants(role) }

func matchPerm(pattern, perm string) bool {
	switch {
	case pattern == "*", pattern == perm:
		return true
	case strings.HasSuffix(pattern, ":*"):
		return strings.HasPrefix(perm, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

type roleKey struct{}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

func RoleFromContext(ctx context.Context) string {
	r, _ := ctx.Value(roleKey{}).(string)
	return r
}
