package readstatus

import (
	"log/slog"
	"sync"
)

// Listener is invoked synchronously after each store mutation.
type Listener func(Change)

type subscription struct {
	id uint64
	fn Listener
}

// registry holds listeners in registration order.
type registry struct {
	mu     sync.Mutex
	subs   []subscription
	nextID uint64
	logger *slog.Logger
}

// add registers fn and returns an idempotent unsubscribe func.
func (r *registry) add(fn Listener) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, subscription{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *registry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.subs {
		if s.id == id {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			return
		}
	}
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// notifyAll calls every listener registered at the time of the call.
func (r *registry) notifyAll(c Change) {
	r.mu.Lock()
	subs := make([]subscription, len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()

	for _, s := range subs {
		r.invoke(s, c)
	}
}

// invoke runs one listener; a panic is logged and does not stop the others.
func (r *registry) invoke(s subscription, c Change) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("read status listener panicked",
				"subscription", s.id, "revision", c.Revision, "panic", rec)
		}
	}()
	s.fn(c)
}
