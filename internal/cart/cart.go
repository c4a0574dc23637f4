// Package cart implements the shopping-cart identity and reconciliation
// engine: the local cart snapshot, optimistic line mutations validated
// against authoritative stock, and the one-time merge of an anonymous cart
// into an authenticated one at login.
package cart

// Cart is the most recently fetched or mutated cart. The id is always
// server-assigned; the client never invents one.
type Cart struct {
	ID    int64  `json:"id"`
	Items []Item `json:"items"`
}

// Item is one purchasable-variant line within a cart.
// Selected is a client-local UI flag and is not persisted authoritatively.
type Item struct {
	LineID         int64             `json:"line_id"`
	VariantID      int64             `json:"variant_id"`
	Name           string            `json:"name"`
	Image          string            `json:"image,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	Quantity       int32             `json:"quantity"`
	UnitPrice      int64             `json:"unit_price"`
	Discount       int64             `json:"discount,omitempty"`
	AvailableStock int32             `json:"available_stock"`
	Selected       bool              `json:"selected"`
}

// Clone returns a deep copy of the cart.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	clone := &Cart{ID: c.ID}
	if c.Items != nil {
		clone.Items = make([]Item, len(c.Items))
		for i, item := range c.Items {
			clone.Items[i] = item
			if item.Attributes != nil {
				attrs := make(map[string]string, len(item.Attributes))
				for k, v := range item.Attributes {
					attrs[k] = v
				}
				clone.Items[i].Attributes = attrs
			}
		}
	}
	return clone
}

// Find returns the line with the given id, or nil.
func (c *Cart) Find(lineID int64) *Item {
	if c == nil {
		return nil
	}
	for i := range c.Items {
		if c.Items[i].LineID == lineID {
			return &c.Items[i]
		}
	}
	return nil
}

// FindByVariant returns the line holding the given variant, or nil.
func (c *Cart) FindByVariant(variantID int64) *Item {
	if c == nil {
		return nil
	}
	for i := range c.Items {
		if c.Items[i].VariantID == variantID {
			return &c.Items[i]
		}
	}
	return nil
}

// RemoveByVariant deletes the line holding the given variant, preserving the
// order of the remaining lines. It reports whether a line was removed.
func (c *Cart) RemoveByVariant(variantID int64) bool {
	if c == nil {
		return false
	}
	for i := range c.Items {
		if c.Items[i].VariantID == variantID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}
