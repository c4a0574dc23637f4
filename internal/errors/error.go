// Package errors provides custom error types for cart-related operations.
package errors

import "errors"

var ErrInvalidQuantity = errors.New("quantity must be a positive integer")
var ErrOutOfStock = errors.New("variant is out of stock")
var ErrUnknownVariant = errors.New("variant not found in catalog")
var ErrLineNotFound = errors.New("cart line not found")

var ErrCartUnavailable = errors.New("authoritative cart store unavailable")
var ErrMergeFailed = errors.New("failed to merge anonymous cart")
