// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"context"
	"fmt"
	"time"
)

// acquire runs open on its own goroutine and waits at most timeout for it.
// A result that arrives after the deadline is handed to release so that late
// devices are not leaked.
func acquire[T any](ctx context.Context, timeout time.Duration, open func() (T, error), release func(T)) (T, error) {
	type result struct {
		v   T
		err error
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan result, 1)
	go func() {
		v, err := open()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil && release != nil {
				release(r.v)
			}
		}()
		var zero T
		return zero, fmt.Errorf("%w after %v: %w", ErrAcquireTimeout, timeout, ctx.Err())
	}
}
