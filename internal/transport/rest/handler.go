// Package rest provides HTTP handlers for the storefront cart operations.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	carterrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	registry   *cart.Registry
	resolver   *identity.Resolver
	reconciler *cart.Reconciler
	cookieName string
	cookieTTL  time.Duration
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewHandler creates a new instance of the cart API with the provided collaborators.
func NewHandler(registry *cart.Registry, resolver *identity.Resolver, reconciler *cart.Reconciler, cookieName string, cookieTTL time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		registry:   registry,
		resolver:   resolver,
		reconciler: reconciler,
		cookieName: cookieName,
		cookieTTL:  cookieTTL,
		validate:   validator.New(),
		logger:     logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes for the cart service.
func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Post("/claim", h.Claim)
		r.Route("/items", func(r chi.Router) {
			r.Post("/", h.AddItem)
			r.Route("/{lineID}", func(r chi.Router) {
				r.Put("/", h.UpdateItem)
				r.Delete("/", h.RemoveItem)
				r.Post("/selection", h.ToggleSelection)
			})
		})
	})
	r.Get("/healthz", h.HealthCheck)
}

type addItemRequest struct {
	VariantID int64 `json:"variant_id" validate:"required,gt=0"`
	Quantity  int32 `json:"quantity"   validate:"required,gt=0"`
}

// updateItemRequest allows zero: updating a line to quantity 0 removes it.
type updateItemRequest struct {
	Quantity int32 `json:"quantity" validate:"gte=0"`
}

// GetCart resolves the request identity, runs a pending merge if the visitor
// just logged in, and returns the current cart state.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	ref, cookieToken := h.identityFor(w, r)

	state, reconciled, ok := h.ensureReconciled(w, r, mLogger, ref, cookieToken)
	if !ok {
		return
	}
	if reconciled {
		web.RespondJSON(w, mLogger, http.StatusOK, state)
		return
	}

	eng := h.registry.Engine(ref)
	state, err := eng.Load(r.Context())
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error loading cart", "owner", ref.String(), "error", err)
		web.RespondError(w, mLogger, http.StatusBadGateway, "Failed to load cart")
		return
	}
	mLogger.DebugContext(r.Context(), "Cart loaded", "owner", ref.String())
	web.RespondJSON(w, mLogger, http.StatusOK, state)
}

// AddItem puts a variant into the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)

	var dto addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !h.validateStruct(w, r, mLogger, dto) {
		return
	}

	ref, cookieToken := h.identityFor(w, r)
	if _, _, ok := h.ensureReconciled(w, r, mLogger, ref, cookieToken); !ok {
		return
	}

	eng := h.registry.Engine(ref)
	result, err := eng.Add(r.Context(), dto.VariantID, dto.Quantity)
	if err != nil {
		h.respondMutationError(w, r, mLogger, err, nil)
		return
	}
	mLogger.InfoContext(r.Context(), "Item added to cart", "owner", ref.String(), "variant_id", dto.VariantID, "quantity", result.Applied)
	web.RespondJSON(w, mLogger, http.StatusCreated, result)
}

// UpdateItem sets a line to a new quantity; zero removes the line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	lineID, ok := web.ParseLineID(w, r, mLogger)
	if !ok {
		return
	}

	var dto updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !h.validateStruct(w, r, mLogger, dto) {
		return
	}

	ref, cookieToken := h.identityFor(w, r)
	if _, _, ok := h.ensureReconciled(w, r, mLogger, ref, cookieToken); !ok {
		return
	}

	eng := h.registry.Engine(ref)
	result, err := eng.UpdateQuantity(r.Context(), lineID, dto.Quantity)
	if err != nil {
		h.respondMutationError(w, r, mLogger, err, result)
		return
	}
	mLogger.InfoContext(r.Context(), "Cart line updated", "owner", ref.String(), "line_id", lineID, "quantity", result.Applied)
	web.RespondJSON(w, mLogger, http.StatusOK, result)
}

// RemoveItem deletes a line from the cart.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	lineID, ok := web.ParseLineID(w, r, mLogger)
	if !ok {
		return
	}

	ref, cookieToken := h.identityFor(w, r)
	if _, _, ok := h.ensureReconciled(w, r, mLogger, ref, cookieToken); !ok {
		return
	}

	eng := h.registry.Engine(ref)
	result, err := eng.Remove(r.Context(), lineID)
	if err != nil {
		h.respondMutationError(w, r, mLogger, err, nil)
		return
	}
	mLogger.InfoContext(r.Context(), "Cart line removed", "owner", ref.String(), "line_id", lineID)
	web.RespondJSON(w, mLogger, http.StatusOK, result)
}

// ToggleSelection flips the UI selection flag on a line. Purely local.
func (h *Handler) ToggleSelection(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	lineID, ok := web.ParseLineID(w, r, mLogger)
	if !ok {
		return
	}

	ref, _ := h.identityFor(w, r)
	eng := h.registry.Engine(ref)
	state, err := eng.ToggleSelection(lineID)
	if err != nil {
		web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Line %d not found", lineID))
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, state)
}

// Claim merges the anonymous cart into the authenticated one after login.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	customerID, ok := web.GetCustomerID(r.Context())
	if !ok {
		web.RespondError(w, mLogger, http.StatusUnauthorized, "Unauthorized: missing customer credential")
		return
	}
	cookieToken, _ := web.GetSessionToken(r.Context())

	eng := h.registry.Engine(identity.CustomerRef(customerID))
	state, err := h.reconciler.Reconcile(r.Context(), eng, customerID, cookieToken)
	switch {
	case err == nil:
		if cookieToken != "" {
			h.clearSessionCookie(w)
			h.registry.Drop(identity.SessionRef(cookieToken))
		}
		mLogger.InfoContext(r.Context(), "Cart claimed", "customer_id", customerID)
		web.RespondJSON(w, mLogger, http.StatusOK, state)
	case errors.Is(err, carterrors.ErrMergeFailed):
		// the authenticated cart was still fetched; the token stays valid so
		// the merge can be retried
		mLogger.WarnContext(r.Context(), "Cart merge failed, retry possible", "customer_id", customerID, "error", err)
		web.RespondJSON(w, mLogger, http.StatusBadGateway, map[string]any{
			"error": "Your saved items could not be merged yet, please retry",
			"state": state,
		})
	default:
		mLogger.ErrorContext(r.Context(), "Error claiming cart", "customer_id", customerID, "error", err)
		web.RespondError(w, mLogger, http.StatusBadGateway, "Failed to load cart")
	}
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// identityFor resolves the owner of the current cart, persisting a freshly
// issued session token in the response cookie.
func (h *Handler) identityFor(w http.ResponseWriter, r *http.Request) (identity.OwnerRef, string) {
	customerID, _ := web.GetCustomerID(r.Context())
	cookieToken, _ := web.GetSessionToken(r.Context())
	ref, issued := h.resolver.Resolve(r.Context(), customerID, cookieToken)
	if issued {
		h.setSessionCookie(w, ref.SessionToken())
	}
	return ref, cookieToken
}

// ensureReconciled runs the pending anonymous-to-authenticated merge before
// any operation on the authenticated cart. It reports the post-merge state,
// whether a merge path ran, and whether the request may proceed.
func (h *Handler) ensureReconciled(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, ref identity.OwnerRef, cookieToken string) (cart.State, bool, bool) {
	if !h.resolver.PendingMerge(ref.CustomerID(), cookieToken) {
		return cart.State{}, false, true
	}

	eng := h.registry.Engine(ref)
	state, err := h.reconciler.Reconcile(r.Context(), eng, ref.CustomerID(), cookieToken)
	switch {
	case err == nil:
		h.clearSessionCookie(w)
		h.registry.Drop(identity.SessionRef(cookieToken))
		return state, true, true
	case errors.Is(err, carterrors.ErrMergeFailed):
		// best effort: the authenticated cart is loaded, the token is kept
		// so the merge stays retryable
		mLogger.WarnContext(r.Context(), "Proceeding without merge", "customer_id", ref.CustomerID(), "error", err)
		return state, true, true
	default:
		mLogger.ErrorContext(r.Context(), "Error reconciling cart", "customer_id", ref.CustomerID(), "error", err)
		web.RespondError(w, mLogger, http.StatusBadGateway, "Failed to load cart")
		return state, false, false
	}
}

// respondMutationError maps engine errors to HTTP responses. A rolled-back
// result is included in the body so the UI can show the restored state.
func (h *Handler) respondMutationError(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, err error, result *cart.MutationResult) {
	switch {
	case errors.Is(err, carterrors.ErrInvalidQuantity):
		web.RespondError(w, mLogger, http.StatusBadRequest, "Quantity must be a positive integer")
	case errors.Is(err, carterrors.ErrOutOfStock):
		web.RespondError(w, mLogger, http.StatusConflict, "This item is out of stock")
	case errors.Is(err, carterrors.ErrUnknownVariant):
		web.RespondError(w, mLogger, http.StatusNotFound, "Unknown product variant")
	case errors.Is(err, carterrors.ErrLineNotFound):
		web.RespondError(w, mLogger, http.StatusNotFound, "Cart line not found")
	case errors.Is(err, carterrors.ErrCartUnavailable):
		mLogger.ErrorContext(r.Context(), "Authoritative cart store failure", "error", err)
		if result != nil {
			web.RespondJSON(w, mLogger, http.StatusBadGateway, map[string]any{
				"error":  "The cart could not be updated, please try again",
				"result": result,
			})
			return
		}
		web.RespondError(w, mLogger, http.StatusBadGateway, "The cart could not be updated, please try again")
	default:
		mLogger.ErrorContext(r.Context(), "Unexpected cart error", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "An unexpected error occurred")
	}
}

// validateStruct validates the DTO and writes field-specific errors.
func (h *Handler) validateStruct(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, dto any) bool {
	if err := h.validate.Struct(dto); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			errorResponse := make(map[string]string)
			for _, fieldErr := range validationErrors {
				errorResponse[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
			}
			mLogger.WarnContext(r.Context(), "Validation errors occurred", "errors", errorResponse)
			web.RespondJSON(w, mLogger, http.StatusBadRequest, map[string]any{"validation_errors": errorResponse})
			return false
		}
		mLogger.ErrorContext(r.Context(), "Error validating request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.cookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID := middleware.GetReqID(r.Context())
	return h.logger.With("request_id", reqID)
}
