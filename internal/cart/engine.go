package cart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	carterrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/identity"
)

// Outcome is how a line mutation ended.
type Outcome string

const (
	// OutcomeCommitted means the authoritative store confirmed the mutation
	// and the snapshot was replaced with the server's cart.
	OutcomeCommitted Outcome = "committed"
	// OutcomeRolledBack means the round trip failed after an optimistic
	// local write and the line was restored to its prior quantity.
	OutcomeRolledBack Outcome = "rolled_back"
)

// MutationResult describes a finished line mutation, including the
// intermediate optimistic values so callers can tell a clamped quantity
// ("adjusted to available stock") from a plain success.
type MutationResult struct {
	Outcome   Outcome `json:"outcome"`
	Requested int32   `json:"requested"`
	Applied   int32   `json:"applied"`
	Prior     int32   `json:"prior,omitempty"`
	Adjusted  bool    `json:"adjusted"`
	State     State   `json:"state"`
}

// Engine applies line mutations for one owner's cart: optimistic local write,
// authoritative round trip, compensating rollback on failure. Mutations on
// the same line are serialized across the round trip; mutations on distinct
// lines may run concurrently because rollback is scoped to a single line.
type Engine struct {
	owner   identity.OwnerRef
	store   *Store
	client  AuthoritativeClient
	catalog VariantResolver
	logger  *slog.Logger

	// held for writing while a reconcile replaces the cart, for reading by
	// every mutation, so no mutation runs against a cart about to be merged
	reconcileMu sync.RWMutex

	mu    sync.Mutex
	lines map[int64]*sync.Mutex
}

// NewEngine creates an Engine for the given owner with an idle store.
func NewEngine(owner identity.OwnerRef, client AuthoritativeClient, catalog VariantResolver, logger *slog.Logger) *Engine {
	return &Engine{
		owner:   owner,
		store:   NewStore(),
		client:  client,
		catalog: catalog,
		logger:  logger.With("component", "cart_engine", "owner", owner.String()),
		lines:   make(map[int64]*sync.Mutex),
	}
}

// Owner returns the identity this engine's cart belongs to.
func (e *Engine) Owner() identity.OwnerRef { return e.owner }

// Store exposes the engine's cart store for reads.
func (e *Engine) Store() *Store { return e.store }

// Load fetches the authoritative cart and replaces the local snapshot.
func (e *Engine) Load(ctx context.Context) (State, error) {
	e.reconcileMu.RLock()
	defer e.reconcileMu.RUnlock()

	e.store.MarkLoading()
	c, err := e.client.Fetch(ctx, e.owner)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", carterrors.ErrCartUnavailable, err)
		e.store.MarkFailed(wrapped)
		return e.store.Snapshot(), wrapped
	}
	e.store.Replace(c)
	return e.store.Snapshot(), nil
}

// Add puts a variant into the cart. There is no optimistic pre-write: the
// target line does not exist locally until the server assigns it, so a
// failure leaves the store untouched.
func (e *Engine) Add(ctx context.Context, variantID int64, quantity int32) (*MutationResult, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("add variant %d: %w", variantID, carterrors.ErrInvalidQuantity)
	}

	e.reconcileMu.RLock()
	defer e.reconcileMu.RUnlock()

	variant, err := e.catalog.Resolve(ctx, variantID)
	if err != nil {
		return nil, fmt.Errorf("add variant %d: %w", variantID, err)
	}
	applied := ClampQuantity(quantity, variant.Stock)
	if applied == 0 {
		return nil, fmt.Errorf("add variant %d: %w", variantID, carterrors.ErrOutOfStock)
	}

	e.store.MarkLoading()
	c, err := e.client.AddItem(ctx, e.owner, variantID, applied)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", carterrors.ErrCartUnavailable, err)
		e.store.MarkFailed(wrapped)
		e.logger.WarnContext(ctx, "Add failed, cart left unchanged", "variant_id", variantID, "error", err)
		return nil, wrapped
	}
	e.store.Replace(c)
	return &MutationResult{
		Outcome:   OutcomeCommitted,
		Requested: quantity,
		Applied:   applied,
		Adjusted:  applied < quantity,
		State:     e.store.Snapshot(),
	}, nil
}

// UpdateQuantity sets a line to a new quantity. The clamped value is written
// locally first, then confirmed against the authoritative store; on failure
// exactly that line is reverted to its prior quantity. A requested quantity
// of zero removes the line.
func (e *Engine) UpdateQuantity(ctx context.Context, lineID int64, quantity int32) (*MutationResult, error) {
	if quantity == 0 {
		return e.Remove(ctx, lineID)
	}
	if quantity < 0 {
		return nil, fmt.Errorf("update line %d: %w", lineID, carterrors.ErrInvalidQuantity)
	}

	e.reconcileMu.RLock()
	defer e.reconcileMu.RUnlock()

	lock := e.lineLock(lineID)
	lock.Lock()
	defer lock.Unlock()

	snap := e.store.Snapshot()
	line := snap.Cart.Find(lineID)
	if line == nil {
		return nil, fmt.Errorf("update line %d: %w", lineID, carterrors.ErrLineNotFound)
	}
	prior := line.Quantity
	applied := ClampQuantity(quantity, line.AvailableStock)
	if applied == 0 {
		// stock for the line dropped to zero; nothing to confirm upstream
		return nil, fmt.Errorf("update line %d: %w", lineID, carterrors.ErrOutOfStock)
	}
	adjusted := applied < quantity

	if applied != prior {
		e.store.ApplyLocal(func(c *Cart) {
			if it := c.Find(lineID); it != nil {
				it.Quantity = applied
			}
		})
	}
	e.store.MarkLoading()

	c, err := e.client.UpdateItem(ctx, e.owner, line.VariantID, applied)
	if err != nil {
		if applied != prior {
			e.store.RevertItem(lineID, prior)
		}
		wrapped := fmt.Errorf("%w: %v", carterrors.ErrCartUnavailable, err)
		e.store.MarkFailed(wrapped)
		e.logger.WarnContext(ctx, "Update failed, line reverted", "line_id", lineID, "prior", prior, "error", err)
		return &MutationResult{
			Outcome:   OutcomeRolledBack,
			Requested: quantity,
			Applied:   applied,
			Prior:     prior,
			Adjusted:  adjusted,
			State:     e.store.Snapshot(),
		}, wrapped
	}
	e.store.Replace(c)
	return &MutationResult{
		Outcome:   OutcomeCommitted,
		Requested: quantity,
		Applied:   applied,
		Prior:     prior,
		Adjusted:  adjusted,
		State:     e.store.Snapshot(),
	}, nil
}

// Remove deletes a line. There is no optimistic local removal: a failed
// delete would otherwise strand the UI on a line the server still has. On
// success the local line matching the variant key returned by the server is
// dropped.
func (e *Engine) Remove(ctx context.Context, lineID int64) (*MutationResult, error) {
	e.reconcileMu.RLock()
	defer e.reconcileMu.RUnlock()

	lock := e.lineLock(lineID)
	lock.Lock()
	defer lock.Unlock()

	snap := e.store.Snapshot()
	line := snap.Cart.Find(lineID)
	if line == nil {
		return nil, fmt.Errorf("remove line %d: %w", lineID, carterrors.ErrLineNotFound)
	}
	prior := line.Quantity

	e.store.MarkLoading()
	removedVariant, err := e.client.DeleteItem(ctx, e.owner, line.VariantID)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", carterrors.ErrCartUnavailable, err)
		e.store.MarkFailed(wrapped)
		e.logger.WarnContext(ctx, "Remove failed, line kept", "line_id", lineID, "error", err)
		return nil, wrapped
	}
	e.store.commitRemove(removedVariant)
	return &MutationResult{
		Outcome: OutcomeCommitted,
		Prior:   prior,
		State:   e.store.Snapshot(),
	}, nil
}

// ToggleSelection flips the UI-only selected flag on a line. Purely local and
// idempotent: no round trip is issued and Status is left untouched.
func (e *Engine) ToggleSelection(lineID int64) (State, error) {
	e.reconcileMu.RLock()
	defer e.reconcileMu.RUnlock()

	found := false
	e.store.ApplyLocal(func(c *Cart) {
		if it := c.Find(lineID); it != nil {
			it.Selected = !it.Selected
			found = true
		}
	})
	if !found {
		return e.store.Snapshot(), fmt.Errorf("toggle line %d: %w", lineID, carterrors.ErrLineNotFound)
	}
	return e.store.Snapshot(), nil
}

// lineLock returns the mutex serializing mutations on one line.
func (e *Engine) lineLock(lineID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.lines[lineID]
	if !ok {
		lock = &sync.Mutex{}
		e.lines[lineID] = lock
	}
	return lock
}

// beginReconcile blocks new mutations and waits for in-flight ones, so a
// merge never races a mutation against the cart it is about to overwrite.
func (e *Engine) beginReconcile() { e.reconcileMu.Lock() }

func (e *Engine) endReconcile() { e.reconcileMu.Unlock() }
