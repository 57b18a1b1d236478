package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kasilink/kasilink-backend/internal/models"
)

const entryReason = "request_paid"

type ledgerRepo struct{ pool *pgxpool.Pool }

// PostBalanced runs the whole posting as one transaction. A transaction-scoped
// advisory lock keyed on the request id serializes concurrent retries, so the
// existence check and the inserts cannot interleave between two callers.
func (r *ledgerRepo) PostBalanced(ctx context.Context, groupID, creditMemberID, debitMemberID string, amountCents int64, relatedRequestID string) error {
	if amountCents <= 0 {
		return models.ValidationError{Field: "amount_cents", Reason: "must be positive"}
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, relatedRequestID); err != nil {
		return classify(err)
	}

	var posted int
	if err := tx.QueryRow(ctx,
		`SELECT count(*) FROM ledger_entries WHERE related_request_id=$1`, relatedRequestID).Scan(&posted); err != nil {
		return classify(err)
	}
	if posted > 0 {
		return classify(tx.Commit(ctx))
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (group_id, member_id, amount_cents, reason, related_request_id)
		VALUES ($1, $2, $3, $6, $7), ($1, $4, $5, $6, $7)`,
		groupID, creditMemberID, amountCents, debitMemberID, -amountCents,
		entryReason, relatedRequestID,
	); err != nil {
		return classify(err)
	}

	for _, leg := range []struct {
		member string
		delta  int64
	}{
		{creditMemberID, amountCents},
		{debitMemberID, -amountCents},
	} {
		if _, err := tx.Exec(ctx, `
			INSERT INTO group_ledger (group_id, member_id, balance_cents, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (group_id, member_id)
			DO UPDATE SET balance_cents = group_ledger.balance_cents + EXCLUDED.balance_cents,
			              updated_at    = now()`,
			groupID, leg.member, leg.delta,
		); err != nil {
			return classify(err)
		}
	}

	return classify(tx.Commit(ctx))
}

func (r *ledgerRepo) Balances(ctx context.Context, groupID string) ([]models.GroupBalance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT group_id, member_id, balance_cents, updated_at
		  FROM group_ledger
		 WHERE group_id=$1
		 ORDER BY member_id ASC`,
		groupID,
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []models.GroupBalance
	for rows.Next() {
		var b models.GroupBalance
		if err := rows.Scan(&b.GroupID, &b.MemberID, &b.BalanceCents, &b.UpdatedAt); err != nil {
			return nil, classify(err)
		}
		out = append(out, b)
	}
	return out, classify(rows.Err())
}

func (r *ledgerRepo) EntriesForRequest(ctx context.Context, requestID string) ([]models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, group_id, member_id, amount_cents, reason, related_request_id, created_at
		  FROM ledger_entries
		 WHERE related_request_id=$1
		 ORDER BY id ASC`,
		requestID,
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.GroupID, &e.MemberID, &e.AmountCents, &e.Reason, &e.RelatedRequestID, &e.CreatedAt); err != nil {
			return nil, classify(err)
		}
		out = append(out, e)
	}
	return out, classify(rows.Err())
}
