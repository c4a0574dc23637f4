package web

import "context"

type requestIDKey struct{}
type customerIDKey struct{}
type sessionTokenKey struct{}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// GetRequestID retrieves the request ID from the context.
// Returns the request ID and a boolean indicating whether it was found.
func GetRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}

// WithCustomerID adds an authenticated customer ID to the context.
func WithCustomerID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, customerIDKey{}, id)
}

// GetCustomerID retrieves the authenticated customer ID from the context.
// Returns 0 and false for anonymous requests.
func GetCustomerID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(customerIDKey{}).(int64)
	return id, ok
}

// WithSessionToken adds the cart session token from the request cookie to the context.
func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionTokenKey{}, token)
}

// GetSessionToken retrieves the cart session token from the context.
func GetSessionToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(sessionTokenKey{}).(string)
	return token, ok
}
