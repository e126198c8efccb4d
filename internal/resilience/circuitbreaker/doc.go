// Package circuitbreaker provides a three-state circuit breaker for
// guarding calls to external dependencies.
//
// Create one breaker per protected dependency with New, then run every
// call through Execute so failures are tracked consistently across
// callers. When the consecutive-failure threshold is reached the
// breaker opens and fails fast with *OpenError until the open timeout
// elapses; the first call after that probes the dependency in the
// half-open state.
//
// Usage:
//
//	cb := circuitbreaker.New("llm", circuitbreaker.DefaultConfig())
//	err := cb.Execute(ctx, func(ctx context.Context) error {
//	    return callExternalService(ctx)
//	})
package circuitbreaker
