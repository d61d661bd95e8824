package registry

import "sync"

// Subscription receives the categories that changed. Changes coalesce:
// several mutations of one category between two reads are reported once,
// and no category is ever dropped.
type Subscription struct {
	r      *Registry
	id     int
	notify chan struct{}

	mu      sync.Mutex
	pending map[Category]bool
	closed  bool
}

// Subscribe registers a new subscription. Call Close when done.
func (r *Registry) Subscribe() *Subscription {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	r.nextID++
	s := &Subscription{
		r:       r,
		id:      r.nextID,
		notify:  make(chan struct{}, 1),
		pending: make(map[Category]bool),
	}
	r.subs[s.id] = s
	return s
}

// C is signalled when at least one category is pending.
func (s *Subscription) C() <-chan struct{} {
	return s.notify
}

// Pending returns and clears the changed categories in a fixed order.
func (s *Subscription) Pending() []Category {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Category
	for _, c := range []Category{Resources, Tools, Prompts} {
		if s.pending[c] {
			out = append(out, c)
			delete(s.pending, c)
		}
	}
	return out
}

// Close stops delivery. It is safe to call more than once.
func (s *Subscription) Close() {
	s.r.subMu.Lock()
	delete(s.r.subs, s.id)
	s.r.subMu.Unlock()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Subscription) mark(c Category) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending[c] = true
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// publish never blocks on a slow subscriber.
func (r *Registry) publish(c Category) {
	r.subMu.Lock()
	subs := make([]*Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	r.subMu.Unlock()

	for _, s := range subs {
		s.mark(c)
	}
}
