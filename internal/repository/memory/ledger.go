package memory

import (
	"context"
	"sort"
	"time"

	"github.com/kasilink/kasilink-backend/internal/models"
)

const entryReason = "request_paid"

type ledgerRepo struct{ s *Store }

func (r *ledgerRepo) PostBalanced(ctx context.Context, groupID, creditMemberID, debitMemberID string, amountCents int64, relatedRequestID string) error {
	if amountCents <= 0 {
		return models.ValidationError{Field: "amount_cents", Reason: "must be positive"}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	// Already posted for this request: successful no-op.
	if _, done := r.s.posted[relatedRequestID]; done {
		return nil
	}

	now := time.Now().UTC()
	reqID := relatedRequestID
	for _, leg := range []struct {
		member string
		amount int64
	}{
		{creditMemberID, amountCents},
		{debitMemberID, -amountCents},
	} {
		r.s.entries = append(r.s.entries, models.LedgerEntry{
			ID:               r.s.nextEntryID,
			GroupID:          groupID,
			MemberID:         leg.member,
			AmountCents:      leg.amount,
			Reason:           entryReason,
			RelatedRequestID: &reqID,
			CreatedAt:        now,
		})
		r.s.nextEntryID++

		key := balanceKey{groupID, leg.member}
		b := r.s.balances[key]
		b.GroupID = groupID
		b.MemberID = leg.member
		b.BalanceCents += leg.amount
		b.UpdatedAt = now
		r.s.balances[key] = b
	}
	r.s.posted[relatedRequestID] = struct{}{}
	return nil
}

func (r *ledgerRepo) Balances(ctx context.Context, groupID string) ([]models.GroupBalance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.GroupBalance
	for key, b := range r.s.balances {
		if key.groupID == groupID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

func (r *ledgerRepo) EntriesForRequest(ctx context.Context, requestID string) ([]models.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range r.s.entries {
		if e.RelatedRequestID != nil && *e.RelatedRequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}
