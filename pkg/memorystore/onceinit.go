package memorystore

import "sync"

// initAttempt pairs a sync.Once with the error its guarded function
// produced. err is written exactly once, inside once.Do's function, so
// every caller that observes once.Do returning has a happens-before edge to
// that write and can read err without further synchronization.
type initAttempt struct {
	once sync.Once
	err  error
}

// initGuard serializes a store's first Initialize call and makes every
// subsequent call a no-op; concurrent first-callers all observe a fully
// initialized store before any of them return. A failed attempt is
// discarded so the next call retries initialization from scratch rather
// than permanently wedging the store in a failed state.
type initGuard struct {
	mu      sync.Mutex
	current *initAttempt
}

func (g *initGuard) do(fn func() error) error {
	g.mu.Lock()
	a := g.current
	if a == nil {
		a = &initAttempt{}
		g.current = a
	}
	g.mu.Unlock()

	a.once.Do(func() {
		a.err = fn()
		if a.err != nil {
			g.mu.Lock()
			if g.current == a {
				g.current = nil
			}
			g.mu.Unlock()
		}
	})
	return a.err
}
