package services

import "context"

type skipCacheInvalidationKey struct{}

// WithSkipCacheInvalidation leaves cache eviction to the caller, e.g. a bulk
// loader that invalidates once at the end.
func WithSkipCacheInvalidation(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipCacheInvalidationKey{}, true)
}

func shouldSkipCacheInvalidation(ctx context.Context) bool {
	skip, _ := ctx.Value(skipCacheInvalidationKey{}).(bool)
	return skip
}
