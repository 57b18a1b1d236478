// Package memory is an in-process storage backend guarded by a single store
// lock. It backs tests and small single-node deployments; the postgres
// backend is the production one.
package memory

import (
	"sync"

	"github.com/kasilink/kasilink-backend/internal/models"
	repo "github.com/kasilink/kasilink-backend/internal/repository"
)

type balanceKey struct {
	groupID  string
	memberID string
}

// Store holds all in-memory state. One mutex serializes every mutation,
// which trivially gives the same per-entity and multi-row atomicity the
// postgres backend gets from transactions.
type Store struct {
	mu sync.Mutex

	requests map[string]models.WalletRequest

	entries     []models.LedgerEntry
	nextEntryID int64
	balances    map[balanceKey]models.GroupBalance
	posted      map[string]struct{}

	reports map[string]models.Report

	audit       []models.AuditRecord
	nextAuditID int64
}

func NewStore() *Store {
	return &Store{
		requests:    make(map[string]models.WalletRequest),
		nextEntryID: 1,
		balances:    make(map[balanceKey]models.GroupBalance),
		posted:      make(map[string]struct{}),
		reports:     make(map[string]models.Report),
		nextAuditID: 1,
	}
}

// NewRepositories wires every repository interface to one shared Store.
func NewRepositories() repo.Repositories {
	s := NewStore()
	return repo.Repositories{
		WalletRequests: &walletRequestsRepo{s},
		Ledger:         &ledgerRepo{s},
		Reports:        &reportsRepo{s},
		AuditLogs:      &auditLogsRepo{s},
	}
}
