package port

import (
	"context"

	"github.com/rl1809/checkout/internal/core/domain"
)

type CustomerDirectory interface {
	// Lookup returns the customer or domain.ErrCustomerNotFound
	Lookup(ctx context.Context, customerID string) (domain.Customer, error)
}

type InventoryLedger interface {
	// ReserveBatch checks and decrements stock for every item as one unit, returning price snapshots in request order
	ReserveBatch(ctx context.Context, items []domain.RequestedProduct) ([]domain.Reservation, error)
}

type OrderStore interface {
	// Create assigns id and timestamp and persists the order with its line items in one write
	Create(ctx context.Context, customer domain.Customer, items []domain.OrderLineItem) (domain.Order, error)
}

// TxRepositories exposes the ledger and order store bound to one open
// transaction.
type TxRepositories interface {
	Ledger() InventoryLedger
	Orders() OrderStore
}

type Transactor interface {
	// WithinTx commits when fn returns nil and rolls back everything fn did otherwise
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error
}
