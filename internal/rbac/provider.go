// Package rbac supplies the roles and permissions embedded in session tokens.
package rbac

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/gatehouse-io/gatehouse/internal/auth"
)

// Provider grants every account the default role, plus SuperAdmin for the
// configured user ids. Ids are never reused, unlike emails, which any caller
// can claim through registration or a profile update once they are free.
// Permissions are the union of the permissions registered for the granted
// roles.
type Provider struct {
	mu          sync.RWMutex
	superAdmins map[int64]struct{}
	defaultRole string
	roles       map[string][]string
}

var _ auth.RoleProvider = (*Provider)(nil)

type Option func(*Provider)

// WithDefaultRole replaces auth.RoleOwner as the role granted to everyone.
func WithDefaultRole(role string) Option {
	return func(p *Provider) { p.defaultRole = role }
}

func NewProvider(superAdminIDs []int64, opts ...Option) *Provider {
	p := &Provider{
		superAdmins: make(map[int64]struct{}, len(superAdminIDs)),
		defaultRole: auth.RoleOwner,
		roles:       make(map[string][]string),
	}
	for _, id := range superAdminIDs {
		if id > 0 {
			p.superAdmins[id] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RegisterRole sets the permissions carried by role, replacing any earlier
// registration.
func (p *Provider) RegisterRole(role string, permissions []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roles[role] = slices.Clone(permissions)
}

func (p *Provider) RolesFor(_ context.Context, userID, _ int64) (roles, permissions []string, err error) {
	roles = []string{p.defaultRole}
	if _, ok := p.superAdmins[userID]; ok {
		roles = append(roles, auth.RoleSuperAdmin)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	permissions = []string{}
	for _, role := range roles {
		for _, perm := range p.roles[role] {
			if perm = strings.TrimSpace(perm); perm != "" && !slices.Contains(permissions, perm) {
				permissions = append(permissions, perm)
			}
		}
	}
	slices.Sort(permissions)
	return roles, permissions, nil
}
