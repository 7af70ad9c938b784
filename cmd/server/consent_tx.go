package main

import (
	"context"
	"database/sql"
	"time"

	"custodia/internal/audit"
	"custodia/internal/consent"
	domainErrors "custodia/pkg/domain-errors"
)

const defaultConsentTxTimeout = 5 * time.Second

// consentPostgresTx runs consent check-then-write sequences inside a
// database transaction so a failed audit append rolls everything back.
type consentPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newConsentPostgresTx(db *sql.DB) *consentPostgresTx {
	return &consentPostgresTx{db: db}
}

func (t *consentPostgresTx) RunInTx(ctx context.Context, _ string, fn func(ctx context.Context, stores consent.TxStores) error) error {
	if err := ctx.Err(); err != nil {
		return domainErrors.Wrap(err, domainErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultConsentTxTimeout
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

	err = fn(ctx, consent.TxStores{
		Consents: consent.NewPostgresTx(tx),
		Audit:    audit.NewPostgresTx(tx),
	})
	if err != nil {
		return err
	}

	return tx.Commit()
}
