package auditRepo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"gridd360-manager/internal/model/audit"
)

const maxEntries = 1000

// AuditRepo appends audit rows and keeps only the most recent entries.
// Entries are immutable; the only delete path is the retention prune.
type AuditRepo struct {
	conn *pgx.Conn
}

func New(db *pgx.Conn) *AuditRepo {
	return &AuditRepo{conn: db}
}

func (r *AuditRepo) Append(ctx context.Context, e *audit.LogEntry) error {
	before, err := marshalSnapshot(e.Before)
	if err != nil {
		return err
	}
	after, err := marshalSnapshot(e.After)
	if err != nil {
		return err
	}

	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO audit_log (id, ts, acting_user_id, action, resource_type, resource_id, before, after)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Timestamp, e.ActorID, string(e.Action), string(e.ResourceType), e.ResourceID, before, after)
	if err != nil {
		return err
	}

	// Retention: oldest rows beyond the cap are silently dropped.
	_, err = tx.Exec(ctx,
		`DELETE FROM audit_log WHERE id NOT IN
		   (SELECT id FROM audit_log ORDER BY ts DESC, id DESC LIMIT $1)`,
		maxEntries)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *AuditRepo) Query(ctx context.Context, limit int, filter audit.Filter) ([]*audit.LogEntry, error) {
	if limit <= 0 || limit > maxEntries {
		limit = maxEntries
	}
	rows, err := r.conn.Query(ctx,
		`SELECT id, ts, acting_user_id, action, resource_type, resource_id, before, after
		 FROM audit_log
		 WHERE ($1 = '' OR acting_user_id = $1)
		   AND ($2 = '' OR action = $2)
		   AND ($3 = '' OR resource_type = $3)
		 ORDER BY ts DESC, id DESC
		 LIMIT $4`,
		filter.ActorID, string(filter.Action), string(filter.ResourceType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*audit.LogEntry
	for rows.Next() {
		var e audit.LogEntry
		var action, resourceType string
		var before, after []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ActorID, &action, &resourceType, &e.ResourceID, &before, &after); err != nil {
			return nil, err
		}
		e.Action = audit.Action(action)
		e.ResourceType = audit.ResourceType(resourceType)
		if len(before) > 0 {
			e.Before = json.RawMessage(before)
		}
		if len(after) > 0 {
			e.After = json.RawMessage(after)
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

func marshalSnapshot(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit snapshot: %w", err)
	}
	return raw, nil
}
