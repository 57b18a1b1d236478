package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kasilink/kasilink-backend/internal/models"
)

type walletRequestsRepo struct{ pool *pgxpool.Pool }

const walletRequestCols = `id, group_id, requester_id, amount_cents, currency, status, expires_at, accepted_by, paid_by, canceled_by, created_at, updated_at`

func scanWalletRequest(row pgx.Row) (models.WalletRequest, error) {
	var req models.WalletRequest
	err := row.Scan(
		&req.ID, &req.GroupID, &req.RequesterID, &req.AmountCents, &req.Currency,
		&req.Status, &req.ExpiresAt, &req.AcceptedBy, &req.PaidBy, &req.CanceledBy,
		&req.CreatedAt, &req.UpdatedAt,
	)
	return req, err
}

func (r *walletRequestsRepo) Create(ctx context.Context, req models.WalletRequest) (models.WalletRequest, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO wallet_requests (`+walletRequestCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING `+walletRequestCols,
		req.ID, req.GroupID, req.RequesterID, req.AmountCents, req.Currency,
		req.Status, req.ExpiresAt, req.AcceptedBy, req.PaidBy, req.CanceledBy,
		req.CreatedAt, req.UpdatedAt,
	)
	out, err := scanWalletRequest(row)
	if err != nil {
		return models.WalletRequest{}, classify(err)
	}
	return out, nil
}

func (r *walletRequestsRepo) GetByID(ctx context.Context, id string) (models.WalletRequest, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+walletRequestCols+` FROM wallet_requests WHERE id=$1`, id)
	req, err := scanWalletRequest(row)
	if err != nil {
		return models.WalletRequest{}, classify(err)
	}
	return req, nil
}

func (r *walletRequestsRepo) List(ctx context.Context, groupID string, status models.RequestStatus, limit, offset int) ([]models.WalletRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+walletRequestCols+`
		  FROM wallet_requests
		 WHERE ($1 = '' OR group_id = $1)
		   AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC
		 LIMIT $3 OFFSET $4`,
		groupID, string(status), limit, offset,
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []models.WalletRequest
	for rows.Next() {
		req, err := scanWalletRequest(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, req)
	}
	return out, classify(rows.Err())
}

func (r *walletRequestsRepo) Transition(ctx context.Context, id string, from []models.RequestStatus, to models.RequestStatus, actorID string, at time.Time) (models.WalletRequest, error) {
	fromStrs := make([]string, len(from))
	for i, f := range from {
		fromStrs[i] = string(f)
	}
	var actor *string
	if actorID != "" {
		actor = &actorID
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE wallet_requests SET
		       status      = $2,
		       accepted_by = CASE WHEN $2::text = 'accepted' THEN $3 ELSE accepted_by END,
		       paid_by     = CASE WHEN $2::text = 'paid'     THEN $3 ELSE paid_by     END,
		       canceled_by = CASE WHEN $2::text = 'canceled' THEN $3 ELSE canceled_by END,
		       updated_at  = $4
		 WHERE id = $1 AND status = ANY($5)
		RETURNING `+walletRequestCols,
		id, string(to), actor, at, fromStrs,
	)
	req, err := scanWalletRequest(row)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.WalletRequest{}, classify(err)
	}
	// No row updated: either the request is gone or the CAS missed.
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM wallet_requests WHERE id=$1)`, id).Scan(&exists); err != nil {
		return models.WalletRequest{}, classify(err)
	}
	if !exists {
		return models.WalletRequest{}, models.ErrNotFound
	}
	return models.WalletRequest{}, models.ErrStateConflict
}

func (r *walletRequestsRepo) ListExpirable(ctx context.Context, now time.Time) ([]models.WalletRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+walletRequestCols+`
		  FROM wallet_requests
		 WHERE status = 'requested' AND expires_at IS NOT NULL AND expires_at < $1
		 ORDER BY created_at ASC`,
		now,
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []models.WalletRequest
	for rows.Next() {
		req, err := scanWalletRequest(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, req)
	}
	return out, classify(rows.Err())
}
