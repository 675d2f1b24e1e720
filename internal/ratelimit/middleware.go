package ratelimit

import (
	"context"
	"fmt"
)

// CallError is returned when a rate-limited operation is rejected. The root
// package's HTTP rate-limit middleware turns it into a 429 response carrying
// the result's rate-limit headers.
type CallError struct {
	Result Result
}

func (e *CallError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d/%d requests, resets at %s",
		e.Result.Limit-e.Result.Remaining, e.Result.Limit, e.Result.ResetAt.Format("15:04:05"))
}

// Guard checks key against rule and returns a *CallError if the call should
// be rejected. The root package's HTTP middleware calls it on every /mcp
// request, keyed by the authenticated source_user, before the request reaches
// the MCP server. If limiter is nil or key is empty, every call is allowed.
func Guard(ctx context.Context, limiter *Limiter, rule Rule, key string) error {
	if limiter == nil || key == "" {
		return nil
	}
	result := limiter.Allow(ctx, rule, key)
	if !result.Allowed {
		return &CallError{Result: result}
	}
	return nil
}
