package retention

import (
	"context"
)

// Store persists retention policies. Implementations return sentinel
// errors: sentinel.ErrNotFound for missing policies, sentinel.ErrConflict
// for a duplicate data type.
type Store interface {
	Create(ctx context.Context, p *Policy) error
	GetByDataType(ctx context.Context, dataType string) (*Policy, error)
	Update(ctx context.Context, p *Policy) error
	List(ctx context.Context) ([]*Policy, error)
}
