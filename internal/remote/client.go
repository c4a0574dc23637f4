// Package remote implements the JSON/HTTPS client for the authoritative
// cart store collaborator.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/identity"
)

// Client talks to the authoritative cart store.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

var _ cart.AuthoritativeClient = (*Client)(nil)

// NewClient creates a cart store client with the given base URL and timeout.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "cart_store_client"),
	}
}

// ownerBody is the addressing part of every mutation body: exactly one of
// the two fields is set, matching the OwnerRef variant.
type ownerBody struct {
	CustomerID   int64  `json:"customer_id,omitempty"`
	SessionToken string `json:"session_token,omitempty"`
}

type mutateRequest struct {
	ownerBody
	VariantID int64 `json:"variant_id"`
	Quantity  int32 `json:"quantity,omitempty"`
}

type assignRequest struct {
	CustomerID   int64  `json:"customer_id"`
	SessionToken string `json:"session_token"`
}

type cartResponse struct {
	ID    int64          `json:"id"`
	Items []itemResponse `json:"items"`
}

type itemResponse struct {
	LineID         int64             `json:"line_id"`
	VariantID      int64             `json:"variant_id"`
	Name           string            `json:"name"`
	Image          string            `json:"image"`
	Attributes     map[string]string `json:"attributes"`
	Quantity       int32             `json:"quantity"`
	UnitPrice      int64             `json:"unit_price"`
	Discount       int64             `json:"discount"`
	AvailableStock int32             `json:"available_stock"`
	Selected       bool              `json:"selected"`
}

type deleteResponse struct {
	VariantID int64 `json:"variant_id"`
}

func ownerOf(o identity.OwnerRef) ownerBody {
	if o.IsCustomer() {
		return ownerBody{CustomerID: o.CustomerID()}
	}
	return ownerBody{SessionToken: o.SessionToken()}
}

func ownerParams(o identity.OwnerRef) url.Values {
	params := url.Values{}
	if o.IsCustomer() {
		params.Set("customerId", strconv.FormatInt(o.CustomerID(), 10))
	} else {
		params.Set("sessionToken", o.SessionToken())
	}
	return params
}

// Fetch returns the full cart for the owner, creating one server-side if absent.
func (c *Client) Fetch(ctx context.Context, owner identity.OwnerRef) (*cart.Cart, error) {
	var resp cartResponse
	endpoint := "/api/v1/carts?" + ownerParams(owner).Encode()
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch cart for %s: %w", owner, err)
	}
	return toCart(&resp), nil
}

// AddItem adds the variant to the owner's cart and returns the full cart.
func (c *Client) AddItem(ctx context.Context, owner identity.OwnerRef, variantID int64, quantity int32) (*cart.Cart, error) {
	body := mutateRequest{ownerBody: ownerOf(owner), VariantID: variantID, Quantity: quantity}
	var resp cartResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/carts/items", body, &resp); err != nil {
		return nil, fmt.Errorf("add variant %d for %s: %w", variantID, owner, err)
	}
	return toCart(&resp), nil
}

// UpdateItem sets the line quantity for the variant and returns the full cart.
func (c *Client) UpdateItem(ctx context.Context, owner identity.OwnerRef, variantID int64, quantity int32) (*cart.Cart, error) {
	body := mutateRequest{ownerBody: ownerOf(owner), VariantID: variantID, Quantity: quantity}
	var resp cartResponse
	if err := c.do(ctx, http.MethodPut, "/api/v1/carts/items", body, &resp); err != nil {
		return nil, fmt.Errorf("update variant %d for %s: %w", variantID, owner, err)
	}
	return toCart(&resp), nil
}

// DeleteItem removes the line for the variant and returns the removed
// variant key acknowledged by the server.
func (c *Client) DeleteItem(ctx context.Context, owner identity.OwnerRef, variantID int64) (int64, error) {
	params := ownerParams(owner)
	params.Set("variantId", strconv.FormatInt(variantID, 10))
	var resp deleteResponse
	endpoint := "/api/v1/carts/items?" + params.Encode()
	if err := c.do(ctx, http.MethodDelete, endpoint, nil, &resp); err != nil {
		return 0, fmt.Errorf("delete variant %d for %s: %w", variantID, owner, err)
	}
	return resp.VariantID, nil
}

// Assign merges the session cart into the customer cart, retires the session
// cart and returns the merged customer cart.
func (c *Client) Assign(ctx context.Context, customerID int64, sessionToken string) (*cart.Cart, error) {
	body := assignRequest{CustomerID: customerID, SessionToken: sessionToken}
	var resp cartResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/carts/assign", body, &resp); err != nil {
		return nil, fmt.Errorf("assign cart to customer %d: %w", customerID, err)
	}
	return toCart(&resp), nil
}

// do executes one JSON round trip and decodes the response into out.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("round trip: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d from %s %s", resp.StatusCode, method, endpoint)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func toCart(resp *cartResponse) *cart.Cart {
	items := make([]cart.Item, len(resp.Items))
	for i, item := range resp.Items {
		items[i] = cart.Item{
			LineID:         item.LineID,
			VariantID:      item.VariantID,
			Name:           item.Name,
			Image:          item.Image,
			Attributes:     item.Attributes,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			Discount:       item.Discount,
			AvailableStock: item.AvailableStock,
			Selected:       item.Selected,
		}
	}
	return &cart.Cart{ID: resp.ID, Items: items}
}
