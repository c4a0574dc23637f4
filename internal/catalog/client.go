// Package catalog implements the JSON/HTTPS client for the product catalog
// collaborator, used to validate variants before a cart round trip.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	carterrors "github.com/abgdnv/storefront/internal/errors"
)

// Client resolves variant ids against the catalog service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

var _ cart.VariantResolver = (*Client)(nil)

// NewClient creates a catalog client with the given base URL and timeout.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "catalog_client"),
	}
}

// Resolve returns the variant for the id, or ErrUnknownVariant if the
// catalog has no such entry.
func (c *Client) Resolve(ctx context.Context, variantID int64) (*cart.Variant, error) {
	endpoint := fmt.Sprintf("%s/api/v1/variants/%d", c.baseURL, variantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve variant %d: %w", variantID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("resolve variant %d: %w", variantID, carterrors.ErrUnknownVariant)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("resolve variant %d: unexpected status %d", variantID, resp.StatusCode)
	}

	var variant cart.Variant
	if err := json.NewDecoder(resp.Body).Decode(&variant); err != nil {
		return nil, fmt.Errorf("decode variant %d: %w", variantID, err)
	}
	return &variant, nil
}
