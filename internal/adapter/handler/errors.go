package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/rl1809/checkout/internal/core/domain"
)

// errorDetails extracts the structured part of a taxonomy error for clients.
func errorDetails(err error) map[string]any {
	var (
		invalid   *domain.InvalidQuantityError
		duplicate *domain.DuplicateProductError
		notFound  *domain.ProductNotFoundError
		shortage  *domain.InsufficientStockError
	)
	switch {
	case errors.As(err, &invalid):
		return map[string]any{"product_id": invalid.ProductID, "quantity": invalid.Quantity}
	case errors.As(err, &duplicate):
		return map[string]any{"product_id": duplicate.ProductID}
	case errors.As(err, &notFound):
		return map[string]any{"product_ids": notFound.IDs}
	case errors.As(err, &shortage):
		return map[string]any{"shortages": shortage.Shortages}
	}
	return nil
}

// errorMetadata flattens errorDetails into string pairs for gRPC ErrorInfo.
func errorMetadata(err error) map[string]string {
	var (
		invalid   *domain.InvalidQuantityError
		duplicate *domain.DuplicateProductError
		notFound  *domain.ProductNotFoundError
		shortage  *domain.InsufficientStockError
	)
	switch {
	case errors.As(err, &invalid):
		return map[string]string{"product_id": invalid.ProductID, "quantity": strconv.Itoa(invalid.Quantity)}
	case errors.As(err, &duplicate):
		return map[string]string{"product_id": duplicate.ProductID}
	case errors.As(err, &notFound):
		return map[string]string{"product_ids": strings.Join(notFound.IDs, ",")}
	case errors.As(err, &shortage):
		md := make(map[string]string, len(shortage.Shortages))
		for _, s := range shortage.Shortages {
			md["shortage."+s.ProductID] = strconv.Itoa(s.Requested) + "/" + strconv.Itoa(s.Available)
		}
		return md
	}
	return nil
}

// publicMessage hides internal error text from clients.
func publicMessage(err error) string {
	if domain.KindOf(err) == domain.KindInternal {
		return domain.ErrInternal.Error()
	}
	return err.Error()
}
