// Package worker launches supervised goroutines: a panicking worker is
// restarted with exponential backoff until a retry budget is spent, at which
// point the shared context is cancelled to bring the process down cleanly.
package worker

import (
	"context"
	"log"
	"time"
)

const (
	maxRetries = 10
	maxDelay   = 10 * time.Minute
	resetAfter = 2 * time.Minute
)

// Go runs fn on its own goroutine with panic recovery and retry. The retry
// count resets if the worker ran for a while before failing. After
// exhausting retries, cancel is called to trigger shutdown.
func Go(ctx context.Context, cancel context.CancelFunc, name string, fn func(ctx context.Context)) {
	go func() {
		retries := 0
		delay := time.Second

		for {
			startTime := time.Now()
			var panicValue any

			func() {
				defer func() {
					panicValue = recover()
				}()
				fn(ctx)
			}()

			// A normal return covers both context cancellation and
			// completion.
			if panicValue == nil {
				return
			}

			if time.Since(startTime) >= resetAfter {
				retries = 0
				delay = time.Second
			}

			retries++
			log.Printf("Panic in %s (attempt %d/%d): %v\n", name, retries, maxRetries, panicValue)

			if retries >= maxRetries {
				log.Printf("%s failed after %d retries, shutting down\n", name, maxRetries)
				cancel()
				return
			}

			log.Printf("%s will retry in %v\n", name, delay)
			select {
			case <-time.After(delay):
				delay = min(delay*2, maxDelay)
			case <-ctx.Done():
				return
			}
		}
	}()
}
