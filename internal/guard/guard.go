package guard

import "sync"

// Guard hands out per-key exclusive sections.
type Guard struct {
	mu   sync.Mutex
	held map[string]*entry
}

type entry struct {
	done chan struct{}
}

func New() *Guard {
	return &Guard{held: make(map[string]*entry)}
}

// TryAcquire claims key without waiting. The returned release must be called
// exactly once when ok is true.
func (g *Guard) TryAcquire(key string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.held[key]; busy {
		return nil, false
	}
	e := &entry{done: make(chan struct{})}
	g.held[key] = e
	return g.releaser(key, e), true
}

// Acquire waits until key is free and claims it.
func (g *Guard) Acquire(key string) (release func()) {
	for {
		g.mu.Lock()
		e, busy := g.held[key]
		if !busy {
			e = &entry{done: make(chan struct{})}
			g.held[key] = e
			g.mu.Unlock()
			return g.releaser(key, e)
		}
		done := e.done
		g.mu.Unlock()
		<-done
	}
}

func (g *Guard) releaser(key string, e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			if g.held[key] == e {
				delete(g.held, key)
			}
			g.mu.Unlock()
			close(e.done)
		})
	}
}

// Held reports whether key is currently claimed.
func (g *Guard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[key]
	return ok
}
