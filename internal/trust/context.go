package trust

import (
	"context"
	"errors"
)

// ErrNoContext is returned when a trust Context is required but absent.
var ErrNoContext = errors.New("no trust context in request context")

// ctxKey is the private context key type for trust Contexts.
type ctxKey struct{}

// ContextWith returns a context carrying the trust Context. The value is
// request-scoped; it must not be handed to background tasks that outlive
// the request without copying the fields they need.
func ContextWith(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext extracts the trust Context, reporting whether one was set.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// FromContextOrError extracts the trust Context or returns ErrNoContext.
func FromContextOrError(ctx context.Context) (Context, error) {
	tc, ok := FromContext(ctx)
	if !ok {
		return Context{}, ErrNoContext
	}
	return tc, nil
}
