package consent

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"custodia/internal/audit"
	domainErrors "custodia/pkg/domain-errors"
	platformsync "custodia/pkg/platform/sync"
)

var (
	shardLockWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "custodia_consent_shard_lock_wait_seconds",
		Help:    "Time spent waiting to acquire consent shard lock",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})
	shardLockAcquisitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "custodia_consent_shard_lock_acquisitions_total",
		Help: "Total number of consent shard lock acquisitions",
	})
)

// TxStores are the stores visible inside a consent transaction. The audit
// store participates so an audit failure rolls the consent mutation back.
type TxStores struct {
	Consents Store
	Audit    audit.Store
}

// StoreTx provides a transactional boundary around consent check-then-write
// sequences. Implementations may wrap a database transaction or, in-memory,
// a per-user lock.
type StoreTx interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context, stores TxStores) error) error
}

const defaultTxTimeout = 5 * time.Second

type memoryTx struct {
	mu      *platformsync.ShardedMutex
	stores  TxStores
	timeout time.Duration
}

// NewMemoryTx builds a StoreTx over in-memory stores, serializing
// transactions per key with a sharded mutex.
func NewMemoryTx(consents Store, auditStore audit.Store) StoreTx {
	return &memoryTx{
		mu:     platformsync.NewShardedMutex(),
		stores: TxStores{Consents: consents, Audit: auditStore},
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

	lockStart := time.Now()
	t.mu.Lock(key)
	shardLockWaitDuration.Observe(time.Since(lockStart).Seconds())
	shardLockAcquisitions.Inc()
	defer t.mu.Unlock(key)

	if err := ctx.Err(); err != nil {
		return domainErrors.Wrap(err, domainErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx, t.stores)
}
