package rights

import (
	"context"
	"time"

	"custodia/internal/audit"
	"custodia/internal/consent"
	"custodia/internal/grievance"
	"custodia/internal/user"
	domainErrors "custodia/pkg/domain-errors"
	platformsync "custodia/pkg/platform/sync"
)

// TxStores are the stores visible inside a rights transaction. Erasure
// touches every owned entity, so the full set participates.
type TxStores struct {
	Users      user.Store
	Consents   consent.Store
	Grievances grievance.Store
	Audit      audit.Store
}

// StoreTx provides a transactional boundary around rights mutations,
// keyed per user.
type StoreTx interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context, stores TxStores) error) error
}

const defaultTxTimeout = 10 * time.Second

type memoryTx struct {
	mu      *platformsync.ShardedMutex
	stores  TxStores
	timeout time.Duration
}

// NewMemoryTx builds a StoreTx over in-memory stores.
func NewMemoryTx(stores TxStores) StoreTx {
	return &memoryTx{
		mu:     platformsync.NewShardedMutex(),
		stores: stores,
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
