package session

import "sync"

// Watch is the publish/subscribe holder for the current identity: a single
// owned value with a notify-on-change contract. Consumers either register a
// callback or poll the version counter; there is no scheduler underneath.
type Watch struct {
	mu      sync.Mutex
	current *User
	version uint64
	subs    map[int]func(*User)
	nextID  int
}

func NewWatch() *Watch {
	return &Watch{subs: make(map[int]func(*User))}
}

// Current returns the held identity (nil when logged out) and the version
// it was published at.
func (w *Watch) Current() (*User, uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current, w.version
}

// Subscribe registers fn for every subsequent change. The returned cancel
// is idempotent.
func (w *Watch) Subscribe(fn func(*User)) (cancel func()) {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.subs[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.subs, id)
		w.mu.Unlock()
	}
}

// publish replaces the current identity and notifies subscribers.
// Publishing an unchanged value is a no-op, so repeated logouts produce a
// single transition.
func (w *Watch) publish(u *User) {
	w.mu.Lock()
	if identityEqual(w.current, u) {
		w.mu.Unlock()
		return
	}
	w.current = u
	w.version++
	subs := make([]func(*User), 0, len(w.subs))
	for _, fn := range w.subs {
		subs = append(subs, fn)
	}
	w.mu.Unlock()

	// Callbacks run outside the lock; a subscriber may call back into the
	// Manager.
	for _, fn := range subs {
		fn(u)
	}
}

func identityEqual(a, b *User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}
