package tenant_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/apperror"
	"github.com/gatehouse-io/gatehouse/internal/audit"
	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/gatehouse-io/gatehouse/internal/platform/database"
	"github.com/gatehouse-io/gatehouse/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct{}

func (fakeTx) WithScope(ctx context.Context, scope database.Scope, fn func(ctx context.Context, q database.Querier) error) error {
	if !scope.Valid() {
		return database.ErrNoScope
	}
	return fn(ctx, nil)
}

// fakeTenants applies the same visibility rule as the real store: a tenant
// scope only sees its own row.
type fakeTenants struct {
	rows        map[int64]*tenant.Tenant
	deactivated int
}

func newFakeTenants(ts ...tenant.Tenant) *fakeTenants {
	f := &fakeTenants{rows: map[int64]*tenant.Tenant{}}
	for i := range ts {
		t := ts[i]
		f.rows[t.ID] = &t
	}
	return f
}

func (f *fakeTenants) visible(scope database.Scope, id int64) (*tenant.Tenant, error) {
	if own, ok := scope.TenantID(); ok && own != id {
		return nil, apperror.NotFound("Tenant", id)
	}
	t, ok := f.rows[id]
	if !ok {
		return nil, apperror.NotFound("Tenant", id)
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTenants) List(_ context.Context, _ database.Querier, scope database.Scope) ([]tenant.Tenant, error) {
	out := []tenant.Tenant{}
	for id := range f.rows {
		if t, err := f.visible(scope, id); err == nil {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTenants) GetByID(_ context.Context, _ database.Querier, scope database.Scope, id int64) (*tenant.Tenant, error) {
	return f.visible(scope, id)
}

func (f *fakeTenants) GetByIDForUpdate(ctx context.Context, q database.Querier, scope database.Scope, id int64) (*tenant.Tenant, error) {
	return f.GetByID(ctx, q, scope, id)
}

func (f *fakeTenants) Update(_ context.Context, _ database.Querier, scope database.Scope, t *tenant.Tenant) error {
	if _, err := f.visible(scope, t.ID); err != nil {
		return err
	}
	cp := *t
	f.rows[t.ID] = &cp
	return nil
}

func (f *fakeTenants) SoftDelete(_ context.Context, _ database.Querier, scope database.Scope, id int64) error {
	if _, err := f.visible(scope, id); err != nil {
		return err
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeTenants) Deactivate(_ context.Context, _ database.Querier, scope database.Scope, id int64) (bool, error) {
	t, err := f.visible(scope, id)
	if err != nil || !t.IsActive {
		return false, nil
	}
	f.rows[id].IsActive = false
	f.deactivated++
	return true, nil
}

type spyAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *spyAudit) Log(_ context.Context, e audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *spyAudit) Close() error { return nil }

func (s *spyAudit) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{}
	for _, e := range s.events {
		out = append(out, e.Action)
	}
	return out
}

var (
	member     = &auth.Identity{UserID: 10, TenantID: 1, Username: "member", Roles: []string{auth.RoleOwner}}
	superAdmin = &auth.Identity{UserID: 99, TenantID: 2, Username: "root", Roles: []string{auth.RoleSuperAdmin}}
)

func ptr[T any](v T) *T { return &v }

func newTenantService(t *testing.T, now time.Time, ts ...tenant.Tenant) (*tenant.Service, *fakeTenants, *spyAudit) {
	t.Helper()
	store := newFakeTenants(ts...)
	spy := &spyAudit{}
	svc := tenant.NewService(fakeTx{}, store, spy, nil).WithClock(func() time.Time { return now })
	return svc, store, spy
}

func TestService_ListSuperAdminOnly(t *testing.T) {
	now := time.Now()
	svc, _, _ := newTenantService(t, now,
		tenant.Tenant{ID: 1, Name: "One", IsActive: true},
		tenant.Tenant{ID: 2, Name: "Two", IsActive: false},
	)

	_, err := svc.List(context.Background(), member)
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))

	list, err := svc.List(context.Background(), superAdmin)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = svc.List(context.Background(), nil)
	assert.Equal(t, apperror.KindUnauthorized, apperror.KindOf(err))
}

func TestService_GetOwnOrSuperAdmin(t *testing.T) {
	svc, _, _ := newTenantService(t, time.Now(),
		tenant.Tenant{ID: 1, Name: "One", IsActive: true},
		tenant.Tenant{ID: 3, Name: "Three", IsActive: true},
	)
	ctx := context.Background()

	got, err := svc.Get(ctx, member, 1)
	require.NoError(t, err)
	assert.Equal(t, "One", got.Name)

	_, err = svc.Get(ctx, member, 3)
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))

	got, err = svc.Get(ctx, superAdmin, 3)
	require.NoError(t, err)
	assert.Equal(t, "Three", got.Name)

	_, err = svc.Get(ctx, superAdmin, 404)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestService_UpdateBillingFieldsForbiddenForMembers(t *testing.T) {
	future := time.Now().Add(time.Hour)
	svc, store, spy := newTenantService(t, time.Now(), tenant.Tenant{ID: 1, Name: "One", Subdomain: "one", IsActive: true})
	ctx := context.Background()

	_, err := svc.Update(ctx, member, 1, tenant.UpdateTenantInput{IsActive: ptr(false)})
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))

	_, err = svc.Update(ctx, member, 1, tenant.UpdateTenantInput{SubscriptionEndsAt: &future})
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))

	assert.True(t, store.rows[1].IsActive)
	assert.Empty(t, spy.actions())
}

func TestService_UpdateOwnTenant(t *testing.T) {
	svc, store, spy := newTenantService(t, time.Now(), tenant.Tenant{ID: 1, Name: "One", Subdomain: "one", IsActive: true})

	got, err := svc.Update(context.Background(), member, 1, tenant.UpdateTenantInput{
		Name:      ptr("One Renamed"),
		Subdomain: ptr("one-renamed"),
	})
	require.NoError(t, err)
	assert.Equal(t, "One Renamed", got.Name)
	assert.Equal(t, "one-renamed", store.rows[1].Subdomain)
	assert.Equal(t, []string{audit.ActionTenantUpdated}, spy.actions())
}

func TestService_UpdateValidation(t *testing.T) {
	svc, _, _ := newTenantService(t, time.Now(), tenant.Tenant{ID: 1, Name: "One", Subdomain: "one", IsActive: true})

	_, err := svc.Update(context.Background(), member, 1, tenant.UpdateTenantInput{Subdomain: ptr("Bad_Subdomain")})
	e, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindValidation, e.Kind)
	assert.Contains(t, e.Fields, "subdomain")
}

func TestService_UpdateOtherTenantForbidden(t *testing.T) {
	svc, _, _ := newTenantService(t, time.Now(), tenant.Tenant{ID: 3, Name: "Three", IsActive: true})

	_, err := svc.Update(context.Background(), member, 3, tenant.UpdateTenantInput{Name: ptr("Mine now")})
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))
}

func TestService_SuperAdminMaySuspend(t *testing.T) {
	svc, store, _ := newTenantService(t, time.Now(), tenant.Tenant{ID: 1, Name: "One", IsActive: true})

	got, err := svc.Update(context.Background(), superAdmin, 1, tenant.UpdateTenantInput{IsActive: ptr(false)})
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.False(t, store.rows[1].IsActive)
}

func TestService_Delete(t *testing.T) {
	svc, store, spy := newTenantService(t, time.Now(), tenant.Tenant{ID: 1, Name: "One", IsActive: true})
	ctx := context.Background()

	err := svc.Delete(ctx, member, 1)
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))

	require.NoError(t, svc.Delete(ctx, superAdmin, 1))
	assert.NotContains(t, store.rows, int64(1))
	assert.Equal(t, []string{audit.ActionTenantDeleted}, spy.actions())

	err = svc.Delete(ctx, superAdmin, 1)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestService_Renew(t *testing.T) {
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	future := time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		endsAt *time.Time
		active bool
		months int
		want   time.Time
	}{
		{"expired renews from now", &past, false, 1, time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)},
		{"open-ended renews from now", nil, true, 2, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)},
		{"future end extends and clamps", &future, true, 1, time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, spy := newTenantService(t, now, tenant.Tenant{ID: 1, Name: "One", IsActive: tt.active, SubscriptionEndsAt: tt.endsAt})

			got, err := svc.Renew(context.Background(), superAdmin, 1, tenant.RenewInput{Months: tt.months})
			require.NoError(t, err)
			require.NotNil(t, got.SubscriptionEndsAt)
			assert.Equal(t, tt.want, *got.SubscriptionEndsAt)
			assert.True(t, store.rows[1].IsActive)
			assert.Equal(t, []string{audit.ActionTenantRenewed}, spy.actions())
		})
	}
}

func TestService_RenewTwiceAccumulates(t *testing.T) {
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	svc, _, _ := newTenantService(t, now, tenant.Tenant{ID: 1, Name: "One", IsActive: true})
	ctx := context.Background()

	_, err := svc.Renew(ctx, superAdmin, 1, tenant.RenewInput{Months: 1})
	require.NoError(t, err)
	got, err := svc.Renew(ctx, superAdmin, 1, tenant.RenewInput{Months: 1})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), *got.SubscriptionEndsAt)
}

func TestService_RenewRejections(t *testing.T) {
	svc, _, _ := newTenantService(t, time.Now(), tenant.Tenant{ID: 1, Name: "One", IsActive: true})
	ctx := context.Background()

	_, err := svc.Renew(ctx, member, 1, tenant.RenewInput{Months: 1})
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))

	for _, months := range []int{0, -1, 37} {
		_, err = svc.Renew(ctx, superAdmin, 1, tenant.RenewInput{Months: months})
		assert.Equal(t, apperror.KindValidation, apperror.KindOf(err), "months=%d", months)
	}
}

func TestService_CallerTenantAndDeactivate(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	svc, store, spy := newTenantService(t, time.Now(), tenant.Tenant{ID: 1, Name: "One", IsActive: true, SubscriptionEndsAt: &past})
	ctx := context.Background()

	got, err := svc.CallerTenant(ctx, member)
	require.NoError(t, err)
	require.NotNil(t, got)

	changed, err := svc.DeactivateExpired(ctx, member, got, audit.SourceGate)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, got.IsActive)
	assert.Equal(t, 1, store.deactivated)

	changed, err = svc.DeactivateExpired(ctx, member, got, audit.SourceGate)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, []string{audit.ActionTenantDeactivated}, spy.actions())
	assert.Equal(t, audit.SourceGate, spy.events[0].Source)
}

func TestService_CallerTenantMissing(t *testing.T) {
	svc, _, _ := newTenantService(t, time.Now())

	got, err := svc.CallerTenant(context.Background(), member)
	require.NoError(t, err)
	assert.Nil(t, got)
}
