package database

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier abstracts pgx query methods so callers can work with both
// pool connections and transactions.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// WithScope runs fn inside a single transaction whose row-level security
// settings match scope. The settings are transaction-local, so nothing leaks
// to the next user of the pooled connection. fn's error rolls the transaction
// back.
func WithScope(ctx context.Context, pool *pgxpool.Pool, scope Scope, fn func(ctx context.Context, q Querier) error) error {
	if !scope.Valid() {
		return ErrNoScope
	}

	tenant := ""
	if id, ok := scope.TenantID(); ok {
		tenant = strconv.FormatInt(id, 10)
	}
	cross := "off"
	if scope.IsCrossTenant() {
		cross = "on"
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			"SELECT set_config('app.current_tenant_id', $1, true), set_config('app.cross_tenant', $2, true)",
			tenant, cross,
		); err != nil {
			return fmt.Errorf("setting scope: %w", err)
		}
		return fn(ctx, tx)
	})
}

// Transactor runs work inside a scoped transaction.
type Transactor interface {
	WithScope(ctx context.Context, scope Scope, fn func(ctx context.Context, q Querier) error) error
}

// PoolTransactor is the Postgres-backed Transactor.
type PoolTransactor struct {
	pool *pgxpool.Pool
}

func NewTransactor(pool *pgxpool.Pool) *PoolTransactor {
	return &PoolTransactor{pool: pool}
}

func (t *PoolTransactor) WithScope(ctx context.Context, scope Scope, fn func(ctx context.Context, q Querier) error) error {
	return WithScope(ctx, t.pool, scope, fn)
}
