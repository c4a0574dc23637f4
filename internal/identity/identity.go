// Package identity decides which of two addressing keys names the current
// cart: the authenticated customer id or the anonymous session token.
package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/abgdnv/storefront/internal/session"
)

// OwnerRef addresses exactly one cart. It holds either an authenticated
// customer id or an anonymous session token, never both. The zero value is
// invalid.
type OwnerRef struct {
	customerID   int64
	sessionToken string
}

// CustomerRef returns an OwnerRef for an authenticated customer.
func CustomerRef(id int64) OwnerRef {
	return OwnerRef{customerID: id}
}

// SessionRef returns an OwnerRef for an anonymous session.
func SessionRef(token string) OwnerRef {
	return OwnerRef{sessionToken: token}
}

// IsCustomer reports whether the ref addresses an authenticated customer cart.
func (o OwnerRef) IsCustomer() bool { return o.customerID > 0 }

// IsSession reports whether the ref addresses an anonymous session cart.
func (o OwnerRef) IsSession() bool { return !o.IsCustomer() && o.sessionToken != "" }

// IsZero reports whether the ref addresses nothing.
func (o OwnerRef) IsZero() bool { return o.customerID <= 0 && o.sessionToken == "" }

// CustomerID returns the customer id, or 0 for a session ref.
func (o OwnerRef) CustomerID() int64 { return o.customerID }

// SessionToken returns the session token, or "" for a customer ref.
func (o OwnerRef) SessionToken() string { return o.sessionToken }

// Key returns a stable addressing key, unique per owner.
func (o OwnerRef) Key() string {
	if o.IsCustomer() {
		return fmt.Sprintf("customer:%d", o.customerID)
	}
	return "session:" + o.sessionToken
}

// String renders the ref for logs with the opaque token abbreviated.
func (o OwnerRef) String() string {
	if o.IsCustomer() {
		return fmt.Sprintf("customer:%d", o.customerID)
	}
	return "session:" + abbrev(o.sessionToken)
}

// Resolver produces the active OwnerRef for a request. The authenticated
// credential always wins; otherwise an existing session token is reused, and
// as a last resort a new token is issued lazily on first cart interaction.
type Resolver struct {
	sessions *session.Store
	logger   *slog.Logger
}

// NewResolver creates a Resolver backed by the given session token store.
func NewResolver(sessions *session.Store, logger *slog.Logger) *Resolver {
	return &Resolver{
		sessions: sessions,
		logger:   logger.With("component", "identity"),
	}
}

// Resolve returns the owner of the current cart and whether a new session
// token was issued. The caller persists a freshly issued token client-side.
func (r *Resolver) Resolve(ctx context.Context, customerID int64, cookieToken string) (OwnerRef, bool) {
	if customerID > 0 {
		return CustomerRef(customerID), false
	}
	if r.sessions.Valid(cookieToken) {
		return SessionRef(cookieToken), false
	}
	token := r.sessions.Issue()
	r.logger.InfoContext(ctx, "Issued new cart session token", "token", abbrev(token))
	return SessionRef(token), true
}

// PendingMerge reports whether an anonymous-to-authenticated transition still
// has a live session cart waiting to be merged.
func (r *Resolver) PendingMerge(customerID int64, cookieToken string) bool {
	return customerID > 0 && r.sessions.Valid(cookieToken)
}

func abbrev(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}
