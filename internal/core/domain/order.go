package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is the only part of a customer record this service depends on:
// that it exists.
type Customer struct {
	ID string
}

// OrderLineItem is one product within an order. Price is the snapshot taken
// at reservation time and never follows later catalog changes.
type OrderLineItem struct {
	ProductID string          `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Order is immutable once created.
type Order struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	LineItems  []OrderLineItem `json:"line_items"`
	CreatedAt  time.Time       `json:"created_at"`
}

// LineItemsFrom converts reservations into order line items, keeping order.
func LineItemsFrom(reservations []Reservation) []OrderLineItem {
	items := make([]OrderLineItem, len(reservations))
	for i, r := range reservations {
		items[i] = OrderLineItem{
			ProductID: r.ProductID,
			Price:     r.Price,
			Quantity:  r.Quantity,
		}
	}
	return items
}
