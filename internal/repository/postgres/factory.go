package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	repo "github.com/kasilink/kasilink-backend/internal/repository"
)

// NewRepositories wires the pgx-backed implementations over one shared pool.
func NewRepositories(pool *pgxpool.Pool) repo.Repositories {
	return repo.Repositories{
		WalletRequests: &walletRequestsRepo{pool},
		Ledger:         &ledgerRepo{pool},
		Reports:        &reportsRepo{pool},
		AuditLogs:      &auditLogsRepo{pool},
	}
}
