package main

import (
	"context"
	"database/sql"
	"time"

	"custodia/internal/audit"
	"custodia/internal/consent"
	"custodia/internal/grievance"
	"custodia/internal/rights"
	"custodia/internal/user"
	domainErrors "custodia/pkg/domain-errors"
)

const defaultRightsTxTimeout = 10 * time.Second

// rightsPostgresTx runs multi-table rights sequences, erasure above all,
// inside a single database transaction.
type rightsPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newRightsPostgresTx(db *sql.DB) *rightsPostgresTx {
	return &rightsPostgresTx{db: db}
}

func (t *rightsPostgresTx) RunInTx(ctx context.Context, _ string, fn func(ctx context.Context, stores rights.TxStores) error) error {
	if err := ctx.Err(); err != nil {
		return domainErrors.Wrap(err, domainErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultRightsTxTimeout
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

	err = fn(ctx, rights.TxStores{
		Users:      user.NewPostgresTx(tx),
		Consents:   consent.NewPostgresTx(tx),
		Grievances: grievance.NewPostgresTx(tx),
		Audit:      audit.NewPostgresTx(tx),
	})
	if err != nil {
		return err
	}

	return tx.Commit()
}
