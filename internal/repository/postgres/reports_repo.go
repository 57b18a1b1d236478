package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kasilink/kasilink-backend/internal/models"
)

type reportsRepo struct{ pool *pgxpool.Pool }

const reportCols = `id, content_id, content_text, reason, reporter_id, status, admin_notes, escalation_level, sla_minutes, escalated_at, closed_at, created_at, updated_at`

func scanReport(row pgx.Row) (models.Report, error) {
	var rep models.Report
	var notes []byte
	err := row.Scan(
		&rep.ID, &rep.ContentID, &rep.ContentText, &rep.Reason, &rep.ReporterID,
		&rep.Status, &notes, &rep.EscalationLevel, &rep.SLAMinutes,
		&rep.EscalatedAt, &rep.ClosedAt, &rep.CreatedAt, &rep.UpdatedAt,
	)
	if err != nil {
		return models.Report{}, err
	}
	if err := json.Unmarshal(notes, &rep.AdminNotes); err != nil {
		return models.Report{}, err
	}
	return rep, nil
}

func marshalNotes(notes []string) []byte {
	if notes == nil {
		notes = []string{}
	}
	b, _ := json.Marshal(notes)
	return b
}

func (r *reportsRepo) Create(ctx context.Context, rep models.Report) (models.Report, error) {
	if rep.ID == "" {
		rep.ID = uuid.NewString()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO reports (`+reportCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING `+reportCols,
		rep.ID, rep.ContentID, rep.ContentText, rep.Reason, rep.ReporterID,
		rep.Status, marshalNotes(rep.AdminNotes), rep.EscalationLevel, rep.SLAMinutes,
		rep.EscalatedAt, rep.ClosedAt, rep.CreatedAt, rep.UpdatedAt,
	)
	out, err := scanReport(row)
	if err != nil {
		return models.Report{}, classify(err)
	}
	return out, nil
}

func (r *reportsRepo) GetByID(ctx context.Context, id string) (models.Report, error) {
	rep, err := scanReport(r.pool.QueryRow(ctx,
		`SELECT `+reportCols+` FROM reports WHERE id=$1`, id))
	if err != nil {
		return models.Report{}, classify(err)
	}
	return rep, nil
}

func (r *reportsRepo) List(ctx context.Context, status models.ReportStatus, limit, offset int) ([]models.Report, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+reportCols+`
		  FROM reports
		 WHERE ($1 = '' OR status = $1)
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		string(status), limit, offset,
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []models.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, rep)
	}
	return out, classify(rows.Err())
}

// Mutate locks the row for the duration of the read-modify-write cycle.
// The callback's error rolls the transaction back and is returned as-is so
// typed domain errors survive the storage layer.
func (r *reportsRepo) Mutate(ctx context.Context, id string, fn func(*models.Report) error) (models.Report, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Report{}, classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rep, err := scanReport(tx.QueryRow(ctx,
		`SELECT `+reportCols+` FROM reports WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Report{}, models.ErrNotFound
		}
		return models.Report{}, classify(err)
	}

	if err := fn(&rep); err != nil {
		return models.Report{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE reports SET
		       status           = $2,
		       admin_notes      = $3,
		       escalation_level = $4,
		       sla_minutes      = $5,
		       escalated_at     = $6,
		       closed_at        = $7,
		       updated_at       = $8
		 WHERE id = $1`,
		rep.ID, rep.Status, marshalNotes(rep.AdminNotes), rep.EscalationLevel,
		rep.SLAMinutes, rep.EscalatedAt, rep.ClosedAt, rep.UpdatedAt,
	); err != nil {
		return models.Report{}, classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Report{}, classify(err)
	}
	return rep, nil
}

func (r *reportsRepo) ListOpenEscalated(ctx context.Context) ([]models.Report, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reportCols+`
		  FROM reports
		 WHERE closed_at IS NULL AND escalated_at IS NOT NULL AND sla_minutes > 0
		 ORDER BY escalated_at ASC`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []models.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, rep)
	}
	return out, classify(rows.Err())
}
