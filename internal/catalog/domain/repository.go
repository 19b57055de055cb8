package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type ListFilter struct {
	Category *Category
	Active   *bool
	Query    string
	AfterID  snowflake.ID
	Limit    int
}

// Repository persists services. Implementations resolve an active
// transaction from ctx.
type Repository interface {
	Insert(ctx context.Context, service *Service) error
	Update(ctx context.Context, service *Service) error
	FindByID(ctx context.Context, id snowflake.ID) (*Service, error)
	FindBySlug(ctx context.Context, slug string) (*Service, error)
	FindByIDs(ctx context.Context, ids []snowflake.ID) ([]*Service, error)
	List(ctx context.Context, filter ListFilter) ([]*Service, error)
	SlugExists(ctx context.Context, slug string) (bool, error)

	// Reserve increments the subscription counter only while the service is
	// active and below its cap, as one atomic operation.
	Reserve(ctx context.Context, id snowflake.ID) error
	// Release decrements the counter, never below zero.
	Release(ctx context.Context, id snowflake.ID) error
}
