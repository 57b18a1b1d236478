package repository

import (
	"context"
	"time"

	"github.com/kasilink/kasilink-backend/internal/models"
)

// WalletRequests persists payment requests. All status writes go through
// Transition so that concurrent callers cannot both win the same edge.
type WalletRequests interface {
	Create(ctx context.Context, req models.WalletRequest) (models.WalletRequest, error)
	GetByID(ctx context.Context, id string) (models.WalletRequest, error)
	// List filters by group and/or status (zero values mean "any"), newest first.
	List(ctx context.Context, groupID string, status models.RequestStatus, limit, offset int) ([]models.WalletRequest, error)
	// Transition is a compare-and-set: the row moves to the target status
	// only if its current status is one of from. The actor id is stamped
	// into accepted_by/paid_by/canceled_by according to the target status.
	// Returns models.ErrStateConflict when the CAS misses and
	// models.ErrNotFound when the request does not exist.
	Transition(ctx context.Context, id string, from []models.RequestStatus, to models.RequestStatus, actorID string, at time.Time) (models.WalletRequest, error)
	// ListExpirable returns requests still in "requested" whose deadline
	// has passed at the given instant.
	ListExpirable(ctx context.Context, now time.Time) ([]models.WalletRequest, error)
}

// Ledger is the double-entry balance store. PostBalanced is the only write
// and is idempotent per related request id.
type Ledger interface {
	// PostBalanced atomically appends the credit/debit entry pair for a
	// settled request and applies both balance deltas. A second call for
	// the same relatedRequestID is a successful no-op.
	PostBalanced(ctx context.Context, groupID, creditMemberID, debitMemberID string, amountCents int64, relatedRequestID string) error
	Balances(ctx context.Context, groupID string) ([]models.GroupBalance, error)
	EntriesForRequest(ctx context.Context, requestID string) ([]models.LedgerEntry, error)
}

// Reports persists moderation reports. Mutate serializes read-modify-write
// cycles per report (row lock or store lock, depending on the backend); the
// callback's error aborts the write and is returned unchanged.
type Reports interface {
	Create(ctx context.Context, r models.Report) (models.Report, error)
	GetByID(ctx context.Context, id string) (models.Report, error)
	List(ctx context.Context, status models.ReportStatus, limit, offset int) ([]models.Report, error)
	Mutate(ctx context.Context, id string, fn func(*models.Report) error) (models.Report, error)
	// ListOpenEscalated returns reports that are not closed and carry an
	// active SLA (escalated_at set, sla_minutes > 0).
	ListOpenEscalated(ctx context.Context) ([]models.Report, error)
}

// AuditLogs is the append-only moderation audit trail.
type AuditLogs interface {
	Create(ctx context.Context, rec models.AuditRecord) error
	ListByReport(ctx context.Context, reportID string) ([]models.AuditRecord, error)
}

// Repositories bundles one concrete backend.
type Repositories struct {
	WalletRequests WalletRequests
	Ledger         Ledger
	Reports        Reports
	AuditLogs      AuditLogs
}
