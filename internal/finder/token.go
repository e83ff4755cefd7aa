package finder

import (
	"context"
	"sync"
	"sync/atomic"
)

// Token is a cooperative stop signal for a run. The loop checks it before
// every candidate; an in-flight download is allowed to finish and is ledgered.
type Token struct {
	cancelled atomic.Bool
	once      sync.Once
	done      chan struct{}
}

// NewToken returns an un-cancelled token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel requests a stop. It is safe to call more than once and from any
// goroutine.
func (t *Token) Cancel() {
	t.once.Do(func() {
		t.cancelled.Store(true)
		close(t.done)
	})
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}

// Done is closed once Cancel has been called.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// context derives a context that is also cancelled when the token fires.
func (t *Token) context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-t.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
