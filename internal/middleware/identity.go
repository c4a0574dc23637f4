// Package middleware extracts the request identity used to address carts.
package middleware

import (
	"net/http"
	"strconv"

	"github.com/abgdnv/storefront/pkg/web"
)

const XCustomerID = "X-Customer-Id"

// Identity puts the optional authenticated customer id and the cart session
// cookie into the request context. Unauthenticated requests pass through:
// an anonymous visitor only gets a session token lazily, on the first cart
// interaction.
func Identity(cookieName string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if header := r.Header.Get(XCustomerID); header != "" {
				if customerID, err := strconv.ParseInt(header, 10, 64); err == nil && customerID > 0 {
					ctx = web.WithCustomerID(ctx, customerID)
				}
			}
			if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
				ctx = web.WithSessionToken(ctx, cookie.Value)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
