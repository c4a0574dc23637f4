package cart

import (
	"context"

	"github.com/abgdnv/storefront/internal/identity"
)

// AuthoritativeClient is the contract of the remote cart store. The server
// is the tie-breaker for price and stock: every successful mutation returns
// the full cart, which replaces the local snapshot.
type AuthoritativeClient interface {
	// Fetch returns the full cart for the owner, creating an empty one if
	// none exists. Idempotent.
	Fetch(ctx context.Context, owner identity.OwnerRef) (*Cart, error)

	// AddItem adds the variant to the owner's cart or increments an existing
	// line and returns the full cart.
	AddItem(ctx context.Context, owner identity.OwnerRef, variantID int64, quantity int32) (*Cart, error)

	// UpdateItem sets the quantity of the line holding the variant and
	// returns the full cart. Idempotent; errors if the line is absent.
	UpdateItem(ctx context.Context, owner identity.OwnerRef, variantID int64, quantity int32) (*Cart, error)

	// DeleteItem removes the line holding the variant and returns the
	// removed variant key. Deleting an absent line is not an error.
	DeleteItem(ctx context.Context, owner identity.OwnerRef, variantID int64) (int64, error)

	// Assign merges all lines of the session-identified cart into the
	// customer-identified cart, retires the session cart and returns the
	// merged customer cart. The server guarantees that repeating the call
	// with the same pair does not double the merged quantities.
	Assign(ctx context.Context, customerID int64, sessionToken string) (*Cart, error)
}

// Variant is a catalog lookup result used to validate adds before any round
// trip reaches the authoritative store.
type Variant struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Stock int32  `json:"stock"`
}

// VariantResolver is the catalog collaborator: it answers whether a variant
// id names a purchasable catalog entry.
type VariantResolver interface {
	Resolve(ctx context.Context, variantID int64) (*Variant, error)
}
