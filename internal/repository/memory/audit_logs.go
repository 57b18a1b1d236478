package memory

import (
	"context"

	"github.com/kasilink/kasilink-backend/internal/models"
)

type auditLogsRepo struct{ s *Store }

func (r *auditLogsRepo) Create(ctx context.Context, rec models.AuditRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec.ID = r.s.nextAuditID
	r.s.nextAuditID++
	r.s.audit = append(r.s.audit, rec)
	return nil
}

func (r *auditLogsRepo) ListByReport(ctx context.Context, reportID string) ([]models.AuditRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.AuditRecord
	for _, rec := range r.s.audit {
		if rec.ReportID == reportID {
			out = append(out, rec)
		}
	}
	return out, nil
}
