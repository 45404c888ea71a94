// Package flight collapses concurrent calls for the same key into one
// execution.
//
// The shared work is detached from the cancellation of whichever caller
// started it and bounded by the group timeout instead. A caller whose own
// context ends stops waiting and gets its context error; the work carries on
// for the callers still waiting.
package flight

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds shared work when Group.Timeout is zero.
const DefaultTimeout = 5 * time.Minute

// Group is a set of keyed in-flight calls. The zero value is ready to use.
type Group struct {
	Timeout time.Duration

	sf singleflight.Group
}

// Do runs fn once for all concurrent callers of key and returns its result
// to each of them.
func Do[T any](ctx context.Context, g *Group, key string, fn func(context.Context) (T, error)) (T, error) {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ch := g.sf.DoChan(key, func() (any, error) {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return fn(wctx)
	})

	select {
	case res := <-ch:
		v, _ := res.Val.(T)
		return v, res.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
