package auth

import (
	"net/http"

	"github.com/vyrodovalexey/authguard/internal/principal"
)

// Permissions derived from the request method.
const (
	PermissionRead   = "read"
	PermissionWrite  = "write"
	PermissionDelete = "delete"
)

// RequiredPermission maps an HTTP method to the permission it needs.
func RequiredPermission(method string) string {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return PermissionWrite
	case http.MethodDelete:
		return PermissionDelete
	default:
		return PermissionRead
	}
}

// Authorize reports whether p may perform method. A principal without any
// permissions is allowed everything it is not explicitly restricted from.
func Authorize(p *principal.Info, method string) bool {
	if p == nil {
		return false
	}
	if len(p.Permissions) == 0 {
		return true
	}
	return Allowed(p, RequiredPermission(method))
}

// Allowed reports whether p holds permission or the admin permission. An
// explicit permission is never granted by an empty set.
func Allowed(p *principal.Info, permission string) bool {
	if p == nil {
		return false
	}
	return p.Permissions.Has(permission) || p.Permissions.Has(principal.AdminPermission)
}
