package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dulceria/mayorista/internal/domain/audit"
)

const insertAuditSQL = `INSERT INTO audit_log (id, actor, action, entity_type, entity_id, before, after, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

var _ audit.Recorder = (*AuditRecorder)(nil)

// AuditRecorder implements audit.Recorder by appending entries to the
// audit_log table. Snapshots are stored as JSONB.
type AuditRecorder struct {
	pool *pgxpool.Pool
}

// NewAuditRecorder returns an AuditRecorder that uses the given pool.
func NewAuditRecorder(pool *pgxpool.Pool) *AuditRecorder {
	return &AuditRecorder{pool: pool}
}

// Record appends one entry. The caller decides whether a failure here aborts
// the surrounding operation; this method only reports it.
func (r *AuditRecorder) Record(ctx context.Context, e audit.Entry) error {
	beforeJSON, err := marshalSnapshot(e.Before)
	if err != nil {
		return fmt.Errorf("marshaling audit before snapshot: %w", err)
	}
	afterJSON, err := marshalSnapshot(e.After)
	if err != nil {
		return fmt.Errorf("marshaling audit after snapshot: %w", err)
	}

	_, err = r.pool.Exec(ctx, insertAuditSQL,
		uuid.NewString(), e.Actor, e.Action, e.EntityType, e.EntityID,
		beforeJSON, afterJSON, e.At,
	)
	if err != nil {
		return fmt.Errorf("recording audit entry for %s %q: %w", e.EntityType, e.EntityID, err)
	}
	return nil
}

// marshalSnapshot keeps absent snapshots as SQL NULL instead of the JSON
// literal null.
func marshalSnapshot(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
