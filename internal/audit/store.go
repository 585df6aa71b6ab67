package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/platform/database"
)

// Store handles audit event persistence.
type Store struct{}

// NewStore creates an audit Store.
func NewStore() *Store {
	return &Store{}
}

// InsertBatch writes a batch of events to the database.
func (s *Store) InsertBatch(ctx context.Context, db database.Querier, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	sql, args, err := buildBatchInsert(events)
	if err != nil {
		return fmt.Errorf("building batch insert: %w", err)
	}
	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("inserting audit events: %w", err)
	}
	return nil
}

// buildBatchInsert constructs a multi-row INSERT statement.
func buildBatchInsert(events []Event) (string, []any, error) {
	const cols = "(tenant_id, user_id, action, resource_type, resource_id, metadata, source)"
	placeholders := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*7)

	for i, e := range events {
		base := i * 7
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))

		var metaJSON []byte
		if e.Metadata != nil {
			var err error
			metaJSON, err = json.Marshal(e.Metadata)
			if err != nil {
				return "", nil, fmt.Errorf("marshaling metadata: %w", err)
			}
		}

		var resourceType *string
		if e.ResourceType != "" {
			resourceType = &e.ResourceType
		}

		args = append(args, e.TenantID, e.UserID, e.Action, resourceType, e.ResourceID, metaJSON, e.Source)
	}

	sql := fmt.Sprintf("INSERT INTO audit_events %s VALUES %s", cols, strings.Join(placeholders, ", "))
	return sql, args, nil
}

// ListParams filters an event query. Zero fields are ignored.
type ListParams struct {
	Action       string
	ResourceType string
	UserID       int64
	After        time.Time
	Before       time.Time
	Limit        int
}

// List returns events visible through scope, newest first.
func (s *Store) List(ctx context.Context, q database.Querier, scope database.Scope, p ListParams) ([]Record, error) {
	sql, args, err := buildListQuery(scope, p)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			r    Record
			meta []byte
		)
		if err := rows.Scan(&r.ID, &r.TenantID, &r.UserID, &r.Action, &r.ResourceType, &r.ResourceID, &meta, &r.Source, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &r.Metadata); err != nil {
				return nil, fmt.Errorf("decoding audit metadata: %w", err)
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// buildListQuery constructs a parameterized SELECT for audit events.
func buildListQuery(scope database.Scope, p ListParams) (string, []any, error) {
	f, err := scope.AppendOnly("")
	if err != nil {
		return "", nil, err
	}
	if p.Action != "" {
		f.Eq("action", p.Action)
	}
	if p.ResourceType != "" {
		f.Eq("resource_type", p.ResourceType)
	}
	if p.UserID != 0 {
		f.Eq("user_id", p.UserID)
	}
	if !p.After.IsZero() {
		f.Where("created_at > " + f.Arg(p.After))
	}
	if !p.Before.IsZero() {
		f.Where("created_at < " + f.Arg(p.Before))
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}

	sql := `SELECT id::text, tenant_id, user_id, action, resource_type, resource_id, metadata, source, created_at
		FROM audit_events
		WHERE ` + f.SQL() + `
		ORDER BY created_at DESC
		LIMIT ` + f.Arg(p.Limit)
	return sql, f.Args(), nil
}
