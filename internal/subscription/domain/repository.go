package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ListFilter struct {
	UserID   snowflake.ID
	Statuses []Status
	// BeforeID pages newest first.
	BeforeID snowflake.ID
	Limit    int
}

// Repository persists subscriptions. Implementations resolve an active
// transaction from ctx.
type Repository interface {
	Insert(ctx context.Context, sub *Subscription) error
	// Update writes sub when the stored version equals sub.Version and
	// returns ErrConcurrentUpdate otherwise. On success sub.Version is bumped.
	Update(ctx context.Context, sub *Subscription) error
	FindByID(ctx context.Context, id snowflake.ID) (*Subscription, error)
	List(ctx context.Context, filter ListFilter) ([]*Subscription, error)
	CountActiveByUser(ctx context.Context, userID snowflake.ID) (int64, error)
	// ListDueForBilling returns active subscriptions whose next billing date is at or before at.
	ListDueForBilling(ctx context.Context, at time.Time, limit int) ([]*Subscription, error)
	// ListExpiring returns active or paused subscriptions whose end date is at or before at.
	ListExpiring(ctx context.Context, at time.Time, limit int) ([]*Subscription, error)
}
