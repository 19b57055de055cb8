package tx

import "context"

// Manager runs fn inside a storage transaction. Repositories resolve the
// active transaction from the context they receive.
type Manager interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopManager runs fn directly. Used by stores without transaction support.
type NopManager struct{}

func (NopManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
