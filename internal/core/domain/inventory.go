package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry together with its available stock. Quantity is
// only ever changed by an InventoryLedger reservation.
type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RequestedProduct is one entry of an order request.
type RequestedProduct struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Reservation is the result of reserving stock for one product: the amount
// taken and the unit price at the moment it was taken.
type Reservation struct {
	ProductID string
	Price     decimal.Decimal
	Quantity  int
}

// StockShortage describes one product that could not satisfy a request.
type StockShortage struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}
