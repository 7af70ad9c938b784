package grievance

import (
	"context"
	"time"

	"custodia/internal/audit"
	domainErrors "custodia/pkg/domain-errors"
	platformsync "custodia/pkg/platform/sync"
)

// TxStores are the stores visible inside a grievance transaction.
type TxStores struct {
	Grievances Store
	Audit      audit.Store
}

// StoreTx provides a transactional boundary around grievance
// check-then-write sequences, keyed per case so concurrent escalations of
// the same grievance serialize.
type StoreTx interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context, stores TxStores) error) error
}

const defaultTxTimeout = 5 * time.Second

type memoryTx struct {
	mu      *platformsync.ShardedMutex
	stores  TxStores
	timeout time.Duration
}

// NewMemoryTx builds a StoreTx over in-memory stores.
func NewMemoryTx(grievances Store, auditStore audit.Store) StoreTx {
	return &memoryTx{
		mu:     platformsync.NewShardedMutex(),
		stores: TxStores{Grievances: grievances, Audit: auditStore},
	}
}

func (t *memoryTx) RunInTx(ctx context.Context, key string, fn func(ctx context.Context, stores TxStores) error) error {
	if err := ctx.Err(); err != nil {
		return domainErrors.Wrap(err, domainErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	t.mu.Lock(key)
	defer t.mu.Unlock(key)

	if err := ctx.Err(); err != nil {
		return domainErrors.Wrap(err, domainErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx, t.stores)
}
