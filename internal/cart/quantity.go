package cart

// ClampQuantity bounds a requested quantity by the available stock. It
// returns 0 when either the request or the stock is non-positive, otherwise
// the smaller of the two. Every mutation path routes through it before a
// round trip; a result below the request must be surfaced to the user as an
// adjustment to available stock, not a silent success.
func ClampQuantity(requested, stock int32) int32 {
	if requested <= 0 || stock <= 0 {
		return 0
	}
	if requested > stock {
		return stock
	}
	return requested
}
