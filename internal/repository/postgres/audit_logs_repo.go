package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kasilink/kasilink-backend/internal/models"
)

type auditLogsRepo struct{ pool *pgxpool.Pool }

func (r *auditLogsRepo) Create(ctx context.Context, rec models.AuditRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO moderation_audit (report_id, action, status, escalation_level, sla_minutes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		rec.ReportID, rec.Action, rec.Status, rec.EscalationLevel, rec.SLAMinutes, rec.CreatedAt,
	)
	return classify(err)
}

func (r *auditLogsRepo) ListByReport(ctx context.Context, reportID string) ([]models.AuditRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, report_id, action, status, escalation_level, sla_minutes, created_at
		  FROM moderation_audit
		 WHERE report_id=$1
		 ORDER BY id ASC`,
		reportID,
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		if err := rows.Scan(&rec.ID, &rec.ReportID, &rec.Action, &rec.Status, &rec.EscalationLevel, &rec.SLAMinutes, &rec.CreatedAt); err != nil {
			return nil, classify(err)
		}
		out = append(out, rec)
	}
	return out, classify(rows.Err())
}
