package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	carterrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/identity"
	mw "github.com/abgdnv/storefront/internal/middleware"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCookieName = "cart_session"

// mockClient scripts the authoritative cart store per test.
type mockClient struct {
	fetch  func(owner identity.OwnerRef) (*cart.Cart, error)
	add    func(owner identity.OwnerRef, variantID int64, quantity int32) (*cart.Cart, error)
	update func(owner identity.OwnerRef, variantID int64, quantity int32) (*cart.Cart, error)
	delete func(owner identity.OwnerRef, variantID int64) (int64, error)
	assign func(customerID int64, sessionToken string) (*cart.Cart, error)
}

func (m *mockClient) Fetch(_ context.Context, owner identity.OwnerRef) (*cart.Cart, error) {
	if m.fetch == nil {
		return nil, errors.New("unexpected Fetch")
	}
	return m.fetch(owner)
}

func (m *mockClient) AddItem(_ context.Context, owner identity.OwnerRef, variantID int64, quantity int32) (*cart.Cart, error) {
	if m.add == nil {
		return nil, errors.New("unexpected AddItem")
	}
	return m.add(owner, variantID, quantity)
}

func (m *mockClient) UpdateItem(_ context.Context, owner identity.OwnerRef, variantID int64, quantity int32) (*cart.Cart, error) {
	if m.update == nil {
		return nil, errors.New("unexpected UpdateItem")
	}
	return m.update(owner, variantID, quantity)
}

func (m *mockClient) DeleteItem(_ context.Context, owner identity.OwnerRef, variantID int64) (int64, error) {
	if m.delete == nil {
		return 0, errors.New("unexpected DeleteItem")
	}
	return m.delete(owner, variantID)
}

func (m *mockClient) Assign(_ context.Context, customerID int64, sessionToken string) (*cart.Cart, error) {
	if m.assign == nil {
		return nil, errors.New("unexpected Assign")
	}
	return m.assign(customerID, sessionToken)
}

type mockCatalog struct {
	variant *cart.Variant
	err     error
}

func (m *mockCatalog) Resolve(context.Context, int64) (*cart.Variant, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.variant, nil
}

type fixture struct {
	router   *chi.Mux
	registry *cart.Registry
	sessions *session.Store
}

func newFixture(t *testing.T, client *mockClient, catalog *mockCatalog) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	sessions := session.NewStore(time.Hour)
	registry := cart.NewRegistry(client, catalog, logger)
	resolver := identity.NewResolver(sessions, logger)
	reconciler := cart.NewReconciler(client, sessions, logger)
	handler := NewHandler(registry, resolver, reconciler, testCookieName, time.Hour, logger)

	router := chi.NewRouter()
	router.Use(mw.Identity(testCookieName))
	handler.RegisterRoutes(router)
	return &fixture{router: router, registry: registry, sessions: sessions}
}

func testCart() *cart.Cart {
	return &cart.Cart{
		ID: 7,
		Items: []cart.Item{
			{LineID: 1, VariantID: 42, Quantity: 3, AvailableStock: 10, UnitPrice: 1999},
			{LineID: 2, VariantID: 43, Quantity: 1, AvailableStock: 4, UnitPrice: 550, Selected: true},
		},
	}
}

// seedSession issues a token, preloads the engine for it and returns the token.
func (f *fixture) seedSession(c *cart.Cart) string {
	token := f.sessions.Issue()
	f.registry.Engine(identity.SessionRef(token)).Store().Replace(c)
	return token
}

func sessionCookie(token string) *http.Cookie {
	return &http.Cookie{Name: testCookieName, Value: token}
}

func issuedCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == testCookieName {
			return c
		}
	}
	return nil
}

func Test_GetCart_AnonymousFirstVisitIssuesCookie(t *testing.T) {
	client := &mockClient{}
	var fetched identity.OwnerRef
	client.fetch = func(owner identity.OwnerRef) (*cart.Cart, error) {
		fetched = owner
		return testCart(), nil
	}
	f := newFixture(t, client, &mockCatalog{})

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	cookie := issuedCookie(t, rec)
	require.NotNil(t, cookie, "first visit must set the session cookie")
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, fetched.IsSession())
	assert.Equal(t, cookie.Value, fetched.SessionToken())

	var state cart.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, cart.StatusSucceeded, state.Status)
	assert.Len(t, state.Cart.Items, 2)
}

func Test_GetCart_ReusesCookieToken(t *testing.T) {
	client := &mockClient{}
	client.fetch = func(owner identity.OwnerRef) (*cart.Cart, error) { return testCart(), nil }
	f := newFixture(t, client, &mockCatalog{})
	token := f.seedSession(testCart())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.AddCookie(sessionCookie(token))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, issuedCookie(t, rec), "a live token must not be replaced")
}

func Test_GetCart_UpstreamFailure(t *testing.T) {
	client := &mockClient{}
	client.fetch = func(identity.OwnerRef) (*cart.Cart, error) { return nil, errors.New("timeout") }
	f := newFixture(t, client, &mockCatalog{})

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func Test_GetCart_LoggedInWithPendingMergeReconciles(t *testing.T) {
	client := &mockClient{}
	assigned := 0
	client.assign = func(customerID int64, sessionToken string) (*cart.Cart, error) {
		assigned++
		return testCart(), nil
	}
	f := newFixture(t, client, &mockCatalog{})
	token := f.seedSession(testCart())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(mw.XCustomerID, "42")
	req.AddCookie(sessionCookie(token))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, assigned)
	cookie := issuedCookie(t, rec)
	require.NotNil(t, cookie, "merge must clear the session cookie")
	assert.Empty(t, cookie.Value)
	assert.False(t, f.sessions.Valid(token))
}

func Test_AddItem(t *testing.T) {
	client := &mockClient{}
	client.add = func(_ identity.OwnerRef, variantID int64, quantity int32) (*cart.Cart, error) {
		return &cart.Cart{ID: 7, Items: []cart.Item{{LineID: 9, VariantID: variantID, Quantity: quantity, AvailableStock: 10}}}, nil
	}
	f := newFixture(t, client, &mockCatalog{variant: &cart.Variant{ID: 42, Stock: 10}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"variant_id": 42, "quantity": 2}`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var result cart.MutationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, cart.OutcomeCommitted, result.Outcome)
	assert.Equal(t, int32(2), result.Applied)
}

func Test_AddItem_ValidationFailure(t *testing.T) {
	f := newFixture(t, &mockClient{}, &mockCatalog{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"variant_id": 42, "quantity": 0}`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_errors")
}

func Test_AddItem_MalformedBody(t *testing.T) {
	f := newFixture(t, &mockClient{}, &mockCatalog{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"variant_id":`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_AddItem_UnknownVariant(t *testing.T) {
	f := newFixture(t, &mockClient{}, &mockCatalog{err: carterrors.ErrUnknownVariant})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"variant_id": 99, "quantity": 1}`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_AddItem_OutOfStock(t *testing.T) {
	f := newFixture(t, &mockClient{}, &mockCatalog{variant: &cart.Variant{ID: 42, Stock: 0}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"variant_id": 42, "quantity": 1}`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func Test_UpdateItem(t *testing.T) {
	client := &mockClient{}
	client.update = func(_ identity.OwnerRef, variantID int64, quantity int32) (*cart.Cart, error) {
		c := testCart()
		c.FindByVariant(variantID).Quantity = quantity
		return c, nil
	}
	f := newFixture(t, client, &mockCatalog{})
	token := f.seedSession(testCart())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/1", strings.NewReader(`{"quantity": 5}`))
	req.AddCookie(sessionCookie(token))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var result cart.MutationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, cart.OutcomeCommitted, result.Outcome)
	assert.Equal(t, int32(5), result.Applied)
	assert.Equal(t, int32(3), result.Prior)
}

func Test_UpdateItem_RollbackBody(t *testing.T) {
	client := &mockClient{}
	client.update = func(identity.OwnerRef, int64, int32) (*cart.Cart, error) { return nil, errors.New("conflict") }
	f := newFixture(t, client, &mockCatalog{})
	token := f.seedSession(testCart())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/1", strings.NewReader(`{"quantity": 5}`))
	req.AddCookie(sessionCookie(token))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body struct {
		Error  string              `json:"error"`
		Result cart.MutationResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error)
	assert.Equal(t, cart.OutcomeRolledBack, body.Result.Outcome)
	// the rolled-back state carries the restored quantity
	assert.Equal(t, int32(3), body.Result.State.Cart.Find(1).Quantity)
}

func Test_UpdateItem_BadLineID(t *testing.T) {
	f := newFixture(t, &mockClient{}, &mockCatalog{})
	token := f.seedSession(testCart())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/abc", strings.NewReader(`{"quantity": 5}`))
	req.AddCookie(sessionCookie(token))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_UpdateItem_LineNotFound(t *testing.T) {
	f := newFixture(t, &mockClient{}, &mockCatalog{})
	token := f.seedSession(testCart())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/99", strings.NewReader(`{"quantity": 5}`))
	req.AddCookie(sessionCookie(token))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_RemoveItem(t *testing.T) {
	client := &mockClient{}
	client.delete = func(_ identity.OwnerRef, variantID int64) (int64, error) { return variantID, nil }
	f := newFixture(t, client, &mockCatalog{})
	token := f.seedSession(testCart())

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cart/items/1", nil)
	req.AddCookie(sessionCookie(token))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var result cart.MutationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, cart.OutcomeCommitted, result.Outcome)
	require.Len(t, result.State.Cart.Items, 1)
	assert.Equal(t, int64(43), result.State.Cart.Items[0].VariantID)
}

func Test_ToggleSelection(t *testing.T) {
	f := newFixture(t, &mockClient{}, &mockCatalog{})
	token := f.seedSession(testCart())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items/1/selection", nil)
	req.AddCookie(sessionCookie(token))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var state cart.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.True(t, state.Cart.Find(1).Selected)
}

func Test_ToggleSelection_NotFound(t *testing.T) {
	f := newFixture(t, &mockClient{}, &mockCatalog{})
	token := f.seedSession(testCart())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items/99/selection", nil)
	req.AddCookie(sessionCookie(token))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_Claim_Unauthorized(t *testing.T) {
	f := newFixture(t, &mockClient{}, &mockCatalog{})

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cart/claim", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func Test_Claim_MergesAndClearsCookie(t *testing.T) {
	client := &mockClient{}
	client.assign = func(customerID int64, sessionToken string) (*cart.Cart, error) {
		assert.Equal(t, int64(42), customerID)
		return testCart(), nil
	}
	f := newFixture(t, client, &mockCatalog{})
	token := f.seedSession(testCart())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/claim", nil)
	req.Header.Set(mw.XCustomerID, "42")
	req.AddCookie(sessionCookie(token))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	cookie := issuedCookie(t, rec)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
	assert.False(t, f.sessions.Valid(token))
}

func Test_Claim_MergeFailureIsRetryable(t *testing.T) {
	client := &mockClient{}
	client.assign = func(int64, string) (*cart.Cart, error) { return nil, errors.New("503") }
	client.fetch = func(identity.OwnerRef) (*cart.Cart, error) { return testCart(), nil }
	f := newFixture(t, client, &mockCatalog{})
	token := f.seedSession(testCart())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/claim", nil)
	req.Header.Set(mw.XCustomerID, "42")
	req.AddCookie(sessionCookie(token))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body struct {
		Error string     `json:"error"`
		State cart.State `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error)
	// the authenticated cart was still fetched and is usable
	assert.Equal(t, cart.StatusSucceeded, body.State.Status)
	// the token survives so the merge can be retried
	assert.True(t, f.sessions.Valid(token))
}

func Test_HealthCheck(t *testing.T) {
	f := newFixture(t, &mockClient{}, &mockCatalog{})

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
