package tenant

import (
	"context"
	"errors"
)

// ErrMissingTenantContext is returned when an operation requires a caller identity
// but none was attached to the context.
var ErrMissingTenantContext = errors.New("tenant: TenantContext missing from context")

// TenantContext carries tenant and user identity information through the request lifecycle.
// It is populated once at the HTTP boundary and then passed down into the workflow
// services, which use it for every tenant isolation check.
type TenantContext struct {
	TenantID      string
	UserID        string
	Roles         []string
	IsSystemAdmin bool
}

// Valid reports whether both tenant and user identity are present.
func (tc TenantContext) Valid() bool {
	return tc.TenantID != "" && tc.UserID != ""
}

// Owns reports whether an entity belonging to tenantID is visible to the caller.
func (tc TenantContext) Owns(tenantID string) bool {
	return tc.TenantID != "" && tc.TenantID == tenantID
}

type tenantContextKey struct{}

// WithTenantContext attaches the given TenantContext to the provided context.
func WithTenantContext(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tc)
}

// FromContext attempts to retrieve a TenantContext from the given context. The second
// return value indicates whether a TenantContext was present.
func FromContext(ctx context.Context) (TenantContext, bool) {
	tc, ok := ctx.Value(tenantContextKey{}).(TenantContext)
	return tc, ok
}

// Require returns the TenantContext attached to ctx, or ErrMissingTenantContext when it
// is absent or incomplete.
func Require(ctx context.Context) (TenantContext, error) {
	tc, ok := FromContext(ctx)
	if !ok || !tc.Valid() {
		return TenantContext{}, ErrMissingTenantContext
	}
	return tc, nil
}

// MustTenantContext retrieves the TenantContext from the given context and panics if it
// is missing.
func MustTenantContext(ctx context.Context) TenantContext {
	tc, ok := FromContext(ctx)
	if !ok {
		panic(ErrMissingTenantContext.Error())
	}
	return tc
}
