package postgres

import (
	"context"

	"github.com/frahmantamala/iam-service/internal/audit"
	auditDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/audit"
	"github.com/jmoiron/sqlx"
)

// AuditRepository writes audit rows with plain SQL; it shares the gorm
// connection pool through sqlx.
type AuditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) audit.Store {
	return &AuditRepository{db: db}
}

const insertAudit = `
INSERT INTO audit_logs (actor_id, action, resource_type, resource_id, details, ip_address, request_id, created_at)
VALUES (:actor_id, :action, :resource_type, :resource_id, :details, :ip_address, :request_id, :created_at)`

func (r *AuditRepository) Insert(ctx context.Context, entry *audit.Entry) error {
	row := auditDatamodel.AuditLog{
		ActorID:      entry.ActorID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Details:      entry.Details,
		IPAddress:    entry.IPAddress,
		RequestID:    entry.RequestID,
		CreatedAt:    entry.CreatedAt,
	}
	if len(row.Details) == 0 {
		row.Details = nil
	}
	_, err := r.db.NamedExecContext(ctx, insertAudit, row)
	return err
}

const latestAudit = `
SELECT id, actor_id, action, resource_type, resource_id, details, ip_address, request_id, created_at
FROM audit_logs
ORDER BY created_at DESC, id DESC
LIMIT ?`

func (r *AuditRepository) Latest(ctx context.Context, limit int) ([]audit.Entry, error) {
	var rows []auditDatamodel.AuditLog
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(latestAudit), limit); err != nil {
		return nil, err
	}
	entries := make([]audit.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, audit.Entry{
			ID:           row.ID,
			ActorID:      row.ActorID,
			Action:       row.Action,
			ResourceType: row.ResourceType,
			ResourceID:   row.ResourceID,
			Details:      row.Details,
			IPAddress:    row.IPAddress,
			RequestID:    row.RequestID,
			CreatedAt:    row.CreatedAt,
		})
	}
	return entries, nil
}
