package main

import (
	"context"
	"database/sql"
	"time"

	"custodia/internal/audit"
	"custodia/internal/grievance"
	domainErrors "custodia/pkg/domain-errors"
)

const defaultGrievanceTxTimeout = 5 * time.Second

// grievancePostgresTx runs grievance check-then-write sequences inside a
// database transaction.
type grievancePostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newGrievancePostgresTx(db *sql.DB) *grievancePostgresTx {
	return &grievancePostgresTx{db: db}
}

func (t *grievancePostgresTx) RunInTx(ctx context.Context, _ string, fn func(ctx context.Context, stores grievance.TxStores) error) error {
	if err := ctx.Err(); err != nil {
		return domainErrors.Wrap(err, domainErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultGrievanceTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is no-op; error already captured
	}()

	err = fn(ctx, grievance.TxStores{
		Grievances: grievance.NewPostgresTx(tx),
		Audit:      audit.NewPostgresTx(tx),
	})
	if err != nil {
		return err
	}

	return tx.Commit()
}
