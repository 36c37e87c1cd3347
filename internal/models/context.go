package models

import (
	"context"
)

type requestContextKey struct{}

// RequestContext carries caller information through context so audit
// events can name their origin without widening the ledger signatures.
type RequestContext struct {
	RequestId string // e.g. chi middleware request id
	Source    string // "http", "cli", "scheduler", ...
	Actor     string // operator or service that initiated the call
}

// WithRequestContext attaches caller data to a context.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// GetRequestContext retrieves caller data from context, or nil if absent.
func GetRequestContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc
}
