package domain

// ValidateQuantities rejects an empty request and any non-positive quantity.
func ValidateQuantities(items []RequestedProduct) error {
	if len(items) == 0 {
		return ErrEmptyOrder
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return &InvalidQuantityError{ProductID: item.ProductID, Quantity: item.Quantity}
		}
	}
	return nil
}

// CheckDuplicates reports the first product id that appears twice. Callers
// must merge repeated products themselves.
func CheckDuplicates(items []RequestedProduct) error {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			return &DuplicateProductError{ProductID: item.ProductID}
		}
		seen[item.ProductID] = struct{}{}
	}
	return nil
}

// ValidateBatch is the full precondition of a ledger reservation.
func ValidateBatch(items []RequestedProduct) error {
	if err := ValidateQuantities(items); err != nil {
		return err
	}
	return CheckDuplicates(items)
}
