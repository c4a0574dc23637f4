package cart

import (
	"context"
	"fmt"
	"log/slog"

	carterrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/session"
	"golang.org/x/sync/singleflight"
)

// Reconciler merges an anonymous cart into the authenticated cart once per
// login transition and retires the session token so the merge is never
// issued twice for the same pair.
type Reconciler struct {
	client   AuthoritativeClient
	sessions *session.Store
	logger   *slog.Logger
	group    singleflight.Group
}

// NewReconciler creates a Reconciler backed by the given session token store.
func NewReconciler(client AuthoritativeClient, sessions *session.Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		client:   client,
		sessions: sessions,
		logger:   logger.With("component", "reconciler"),
	}
}

// Reconcile runs the anonymous-to-authenticated merge against the given
// customer engine. With no live session token there is nothing to merge and
// the authenticated cart is fetched directly. On a successful assign the
// token is deleted, so a later load goes straight to a fetch and the merge
// is never re-issued. On assign failure the token is kept for a retry and
// the authenticated cart is still fetched so the caller is not blocked; the
// returned error then wraps ErrMergeFailed while the state is usable.
func (r *Reconciler) Reconcile(ctx context.Context, e *Engine, customerID int64, sessionToken string) (State, error) {
	if !r.sessions.Valid(sessionToken) {
		return e.Load(ctx)
	}

	key := fmt.Sprintf("%d:%s", customerID, sessionToken)
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.reconcile(ctx, e, customerID, sessionToken)
	})
	state, ok := v.(State)
	if !ok {
		state = e.store.Snapshot()
	}
	return state, err
}

func (r *Reconciler) reconcile(ctx context.Context, e *Engine, customerID int64, sessionToken string) (State, error) {
	e.beginReconcile()
	defer e.endReconcile()

	e.store.MarkLoading()
	merged, assignErr := r.client.Assign(ctx, customerID, sessionToken)
	if assignErr == nil {
		// token is retired first so the merge cannot be issued again even if
		// a concurrent load races the replace
		r.sessions.Delete(sessionToken)
		e.store.Replace(merged)
		r.logger.InfoContext(ctx, "Merged anonymous cart into customer cart", "customer_id", customerID)
		return e.store.Snapshot(), nil
	}

	// best effort: the anonymous lines stay merge-able server-side until the
	// token expires, so fall through to a direct fetch and let the user in
	r.logger.WarnContext(ctx, "Cart merge failed, keeping session token for retry",
		"customer_id", customerID, "error", assignErr)

	c, fetchErr := r.client.Fetch(ctx, identity.CustomerRef(customerID))
	if fetchErr != nil {
		wrapped := fmt.Errorf("%w: %v", carterrors.ErrCartUnavailable, fetchErr)
		e.store.MarkFailed(wrapped)
		return e.store.Snapshot(), wrapped
	}
	e.store.Replace(c)
	return e.store.Snapshot(), fmt.Errorf("%w: %v", carterrors.ErrMergeFailed, assignErr)
}
