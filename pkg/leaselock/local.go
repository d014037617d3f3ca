package leaselock

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"
)

// Local is an in-process Locker. Leases never expire, so TTL and renewal
// options are ignored; Wait and WaitInterval behave like Client's.
type Local struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]chan struct{})}
}

func (l *Local) WithLease(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error {
	if key == "" {
		return errors.New("lease lock key is empty")
	}
	opts = opts.withDefaults()

	var mine chan struct{}
	for {
		l.mu.Lock()
		released, busy := l.held[key]
		if !busy {
			mine = make(chan struct{})
			l.held[key] = mine
			l.mu.Unlock()
			break
		}
		l.mu.Unlock()

		if !opts.Wait {
			return ErrBusy
		}
		wait := opts.WaitInterval
		if opts.WaitJitter > 0 {
			wait += time.Duration(rand.Int64N(int64(opts.WaitJitter) + 1))
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-released:
		case <-t.C:
		}
		t.Stop()
	}

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		close(mine)
		l.mu.Unlock()
	}()

	return fn(ctx)
}
