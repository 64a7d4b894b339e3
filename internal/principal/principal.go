package principal

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/vyrodovalexey/authguard/internal/config"
)

// AdminPermission grants every action.
const AdminPermission = "admin"

// PermissionSet is a flat set of permission names. It encodes as a sorted
// JSON array.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from names, ignoring empty strings.
func NewPermissionSet(names ...string) PermissionSet {
	s := make(PermissionSet, len(names))
	for _, n := range names {
		if n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

// Has reports whether name is in the set.
func (s PermissionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// List returns the names in sorted order.
func (s PermissionSet) List() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON implements json.Marshaler.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *PermissionSet) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	*s = NewPermissionSet(names...)
	return nil
}

// Info is an authenticated principal. SecretValue never leaves the process:
// it is excluded from every encoding. Usage is shared per principal ID and
// is attached by the strategy that resolved the principal.
type Info struct {
	ID          string                 `json:"id"`
	SecretValue string                 `json:"-"`
	Description string                 `json:"description,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	ExpiresAt   *time.Time             `json:"expiresAt,omitempty"`
	Enabled     bool                   `json:"enabled"`
	Permissions PermissionSet          `json:"permissions"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Usage       *UsageStatistics       `json:"-"`
}

// Valid reports enabled && not expired at now.
func (p *Info) Valid(now time.Time) bool {
	return p.Enabled && !p.Expired(now)
}

// Expired reports whether ExpiresAt is set and not after now.
func (p *Info) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// Clone returns a copy that shares no mutable maps with p. Usage is shared.
func (p *Info) Clone() *Info {
	if p == nil {
		return nil
	}
	c := *p
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		c.ExpiresAt = &t
	}
	c.Permissions = make(PermissionSet, len(p.Permissions))
	for k := range p.Permissions {
		c.Permissions[k] = struct{}{}
	}
	if p.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(p.Metadata))
		for k, v := range p.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// FromSpec converts a declarative principal into an Info. A zero CreatedAt
// defaults to now.
func FromSpec(spec config.PrincipalSpec, now time.Time) *Info {
	info := &Info{
		ID:          spec.ID,
		SecretValue: spec.Value,
		Description: spec.Description,
		CreatedAt:   now,
		Enabled:     spec.IsEnabled(),
		Permissions: NewPermissionSet(spec.Permissions...),
		Metadata:    spec.Metadata,
	}
	if spec.CreatedAt != nil {
		info.CreatedAt = *spec.CreatedAt
	}
	if spec.ExpiresAt != nil {
		t := *spec.ExpiresAt
		info.ExpiresAt = &t
	}
	return info
}
