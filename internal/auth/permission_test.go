package auth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vyrodovalexey/authguard/internal/principal"
)

func TestRequiredPermission(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		http.MethodGet:     PermissionRead,
		http.MethodHead:    PermissionRead,
		http.MethodOptions: PermissionRead,
		http.MethodPost:    PermissionWrite,
		http.MethodPut:     PermissionWrite,
		http.MethodPatch:   PermissionWrite,
		http.MethodDelete:  PermissionDelete,
		"PROPFIND":         PermissionRead,
	}
	for method, want := range tests {
		assert.Equal(t, want, RequiredPermission(method), method)
	}
}

func TestAuthorize(t *testing.T) {
	t.Parallel()

	withPerms := func(perms ...string) *principal.Info {
		return &principal.Info{ID: "p", Enabled: true, Permissions: principal.NewPermissionSet(perms...)}
	}

	tests := []struct {
		name   string
		p      *principal.Info
		method string
		want   bool
	}{
		{name: "nil principal", p: nil, method: http.MethodGet, want: false},
		{name: "empty set allows read", p: withPerms(), method: http.MethodGet, want: true},
		{name: "empty set allows delete", p: withPerms(), method: http.MethodDelete, want: true},
		{name: "read allows get", p: withPerms("read"), method: http.MethodGet, want: true},
		{name: "read denies post", p: withPerms("read"), method: http.MethodPost, want: false},
		{name: "read write denies delete", p: withPerms("read", "write"), method: http.MethodDelete, want: false},
		{name: "write allows patch", p: withPerms("write"), method: http.MethodPatch, want: true},
		{name: "admin allows delete", p: withPerms("admin"), method: http.MethodDelete, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Authorize(tt.p, tt.method))
		})
	}
}

func TestAllowed(t *testing.T) {
	t.Parallel()

	empty := &principal.Info{ID: "p", Permissions: principal.NewPermissionSet()}
	assert.False(t, Allowed(empty, principal.AdminPermission), "empty set does not grant explicit permissions")
	assert.False(t, Allowed(nil, PermissionRead))

	admin := &principal.Info{ID: "a", Permissions: principal.NewPermissionSet(principal.AdminPermission)}
	assert.True(t, Allowed(admin, "reports"))
}
