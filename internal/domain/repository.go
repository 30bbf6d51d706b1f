package domain

import (
	"context"

	"github.com/google/uuid"
)

// Catalog looks up products. FindActiveProduct returns (nil, nil) when the
// product does not exist or is inactive.
type Catalog interface {
	FindActiveProduct(ctx context.Context, id uuid.UUID) (*Product, error)
}

// OrderStore is the set of writes available inside one unit of work.
type OrderStore interface {
	Catalog
	InsertOrder(ctx context.Context, order *Order) error
	InsertItems(ctx context.Context, orderID uuid.UUID, items []OrderItem) error
	DeleteItems(ctx context.Context, orderID uuid.UUID) error
	UpdateOrder(ctx context.Context, order *Order) error
	// GetOrderForUpdate loads the order with its items and holds it against
	// concurrent mutation until the unit of work ends. Returns ErrOrderNotFound.
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)
}

// UnitOfWork runs fn atomically: commit when fn returns nil, rollback otherwise.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, store OrderStore) error) error
}

type OrderReader interface {
	// GetOrder returns ErrOrderNotFound when absent.
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	// ListOrders returns one page newest first and the total count matching the filter.
	// A negative offset is past the end: no orders, total still counted.
	ListOrders(ctx context.Context, filter OrderFilter, limit, offset int) ([]Order, int, error)
}

type OrderRepository interface {
	UnitOfWork
	OrderReader
	Ping(ctx context.Context) error
}
