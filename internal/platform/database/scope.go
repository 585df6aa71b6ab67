package database

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoScope is returned when a query is attempted without an established
// data scope.
var ErrNoScope = errors.New("no data scope established")

// Scope determines which rows a query may observe or mutate. A Scope can only
// be built through ForTenant or CrossTenant; the zero value is rejected.
type Scope struct {
	tenantID    int64
	actorID     int64
	crossTenant bool
	valid       bool
}

// ForTenant returns a scope restricted to tenantID. actorID is stamped into
// audit columns and may be zero for unauthenticated flows.
func ForTenant(tenantID, actorID int64) (Scope, error) {
	if tenantID <= 0 {
		return Scope{}, fmt.Errorf("%w: invalid tenant id %d", ErrNoScope, tenantID)
	}
	return Scope{tenantID: tenantID, actorID: actorID, valid: true}, nil
}

// CrossTenant returns an unscoped view over every tenant. It is reserved for
// superadmin requests and the pre-authentication paths (login lookup and
// registration), where no caller tenant exists yet. Soft-deleted rows stay
// hidden.
func CrossTenant(actorID int64) Scope {
	return Scope{actorID: actorID, crossTenant: true, valid: true}
}

func (s Scope) Valid() bool { return s.valid }

// TenantID returns the tenant the scope is bound to. ok is false for
// cross-tenant and zero scopes.
func (s Scope) TenantID() (id int64, ok bool) {
	if !s.valid || s.crossTenant {
		return 0, false
	}
	return s.tenantID, true
}

func (s Scope) IsCrossTenant() bool { return s.valid && s.crossTenant }

// ActorID is the user performing the operation, or 0 when anonymous.
func (s Scope) ActorID() int64 { return s.actorID }

// Actor returns the actor id as a nullable value for audit columns.
func (s Scope) Actor() *int64 {
	if s.actorID == 0 {
		return nil
	}
	id := s.actorID
	return &id
}

func (s Scope) String() string {
	switch {
	case !s.valid:
		return "scope(none)"
	case s.crossTenant:
		return "scope(cross-tenant)"
	default:
		return "scope(tenant=" + strconv.FormatInt(s.tenantID, 10) + ")"
	}
}

// Owned starts a filter for a tenant-owned table: rows must not be
// soft-deleted and, unless the scope is cross-tenant, must belong to the
// scope's tenant. alias qualifies the columns and may be empty.
func (s Scope) Owned(alias string) (*Filter, error) {
	if !s.valid {
		return nil, ErrNoScope
	}
	f := &Filter{prefix: columnPrefix(alias)}
	f.Where(f.prefix + "deleted_at IS NULL")
	if !s.crossTenant {
		f.Where(f.prefix + "tenant_id = " + f.Arg(s.tenantID))
	}
	return f, nil
}

// Unowned starts a filter for a table without a tenant relation. Only the
// soft-delete predicate applies.
func (s Scope) Unowned(alias string) (*Filter, error) {
	if !s.valid {
		return nil, ErrNoScope
	}
	f := &Filter{prefix: columnPrefix(alias)}
	f.Where(f.prefix + "deleted_at IS NULL")
	return f, nil
}

func columnPrefix(alias string) string {
	if alias == "" {
		return ""
	}
	return alias + "."
}

// Filter accumulates WHERE conditions and their positional arguments. Values
// are always passed as arguments; Arg returns the matching $n placeholder.
type Filter struct {
	prefix string
	conds  []string
	args   []any
}

// Arg registers v and returns its placeholder.
func (f *Filter) Arg(v any) string {
	f.args = append(f.args, v)
	return "$" + strconv.Itoa(len(f.args))
}

// Where appends a condition. Placeholders inside cond must come from Arg.
func (f *Filter) Where(cond string) *Filter {
	f.conds = append(f.conds, cond)
	return f
}

// Eq appends "<alias>.column = $n".
func (f *Filter) Eq(column string, v any) *Filter {
	return f.Where(f.prefix + column + " = " + f.Arg(v))
}

// Col qualifies column with the filter's alias.
func (f *Filter) Col(column string) string { return f.prefix + column }

// SQL returns the conditions joined with AND, or TRUE when there are none.
func (f *Filter) SQL() string {
	if len(f.conds) == 0 {
		return "TRUE"
	}
	return strings.Join(f.conds, " AND ")
}

func (f *Filter) Args() []any { return f.args }

// AppendOnly starts a filter for an append-only tenant table that has no
// soft-delete column. Only the tenant predicate applies.
func (s Scope) AppendOnly(alias string) (*Filter, error) {
	if !s.valid {
		return nil, ErrNoScope
	}
	f := &Filter{prefix: columnPrefix(alias)}
	if !s.crossTenant {
		f.Where(f.prefix + "tenant_id = " + f.Arg(s.tenantID))
	}
	return f, nil
}
