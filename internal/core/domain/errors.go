package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinels for every failure class an order placement can end in. Typed
// errors below carry details and match their sentinel through errors.Is.
var (
	ErrCustomerNotFound  = errors.New("customer not found")
	ErrEmptyOrder        = errors.New("order has no products")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrDuplicateProduct  = errors.New("duplicate product in request")
	ErrProductNotFound   = errors.New("products not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrBusy              = errors.New("inventory busy, retry")
	ErrInternal          = errors.New("internal error")
)

// Kind is the stable name of an error class, used by transports.
type Kind string

const (
	KindNone              Kind = ""
	KindCustomerNotFound  Kind = "customer_not_found"
	KindEmptyOrder        Kind = "empty_order"
	KindInvalidQuantity   Kind = "invalid_quantity"
	KindDuplicateProduct  Kind = "duplicate_product"
	KindProductNotFound   Kind = "product_not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindBusy              Kind = "busy"
	KindCanceled          Kind = "canceled"
	KindInternal          Kind = "internal"
)

// KindOf classifies err. Anything that is not part of the taxonomy is
// internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrCustomerNotFound):
		return KindCustomerNotFound
	case errors.Is(err, ErrEmptyOrder):
		return KindEmptyOrder
	case errors.Is(err, ErrInvalidQuantity):
		return KindInvalidQuantity
	case errors.Is(err, ErrDuplicateProduct):
		return KindDuplicateProduct
	case errors.Is(err, ErrProductNotFound):
		return KindProductNotFound
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}

type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("%s: product %s quantity %d", ErrInvalidQuantity, e.ProductID, e.Quantity)
}

func (e *InvalidQuantityError) Is(target error) bool { return target == ErrInvalidQuantity }

type DuplicateProductError struct {
	ProductID string
}

func (e *DuplicateProductError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicateProduct, e.ProductID)
}

func (e *DuplicateProductError) Is(target error) bool { return target == ErrDuplicateProduct }

// ProductNotFoundError lists every requested id missing from the catalog, in
// request order.
type ProductNotFoundError struct {
	IDs []string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrProductNotFound, strings.Join(e.IDs, ", "))
}

func (e *ProductNotFoundError) Is(target error) bool { return target == ErrProductNotFound }

// InsufficientStockError has one entry per violating product, in request
// order.
type InsufficientStockError struct {
	Shortages []StockShortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, len(e.Shortages))
	for i, s := range e.Shortages {
		parts[i] = fmt.Sprintf("%s (requested %d, available %d)", s.ProductID, s.Requested, s.Available)
	}
	return fmt.Sprintf("%s: %s", ErrInsufficientStock, strings.Join(parts, ", "))
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// InternalError wraps a storage or infrastructure failure.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrInternal, e.Op, e.Err)
}

func (e *InternalError) Is(target error) bool { return target == ErrInternal }

func (e *InternalError) Unwrap() error { return e.Err }

// Internal wraps err unless it already belongs to the taxonomy or is a
// context error.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindInternal || errors.Is(err, ErrInternal) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}
