package resource

import (
	"sync"
	"sync/atomic"
)

// Subscriber is called with the new descriptor each time a handle's
// descriptor is replaced.
type Subscriber func(*Descriptor)

type subscription struct {
	id uint64
	fn Subscriber
}

// Handle is the stable cell consumers hold. Its descriptor may be replaced
// at any time (load completion, reload, atlas re-slice, device reset);
// references to the handle stay valid.
type Handle struct {
	id   int
	name string
	kind Kind

	cur atomic.Pointer[Descriptor]

	mu      sync.Mutex
	subs    []subscription
	nextSub uint64
}

// NewHandle creates a handle pointing at initial, which must not be nil.
func NewHandle(id int, name string, kind Kind, initial *Descriptor) *Handle {
	if initial == nil {
		panic("resource: handle " + name + " created without a descriptor")
	}
	h := &Handle{id: id, name: name, kind: kind}
	if initial.id == 0 {
		initial.id = id
	}
	h.cur.Store(initial)
	return h
}

func (h *Handle) ID() int      { return h.id }
func (h *Handle) Name() string { return h.name }

// Kind reports whether the handle was registered for a whole resource or
// an atlas entry. It does not change while the handle shows a placeholder.
func (h *Handle) Kind() Kind { return h.kind }

// Descriptor returns the current descriptor. Never nil.
func (h *Handle) Descriptor() *Descriptor { return h.cur.Load() }

func (h *Handle) Width() int  { return h.Descriptor().Width() }
func (h *Handle) Height() int { return h.Descriptor().Height() }

// Loaded reports whether the handle shows real data rather than the
// placeholder. The placeholder handle itself counts as loaded.
func (h *Handle) Loaded() bool {
	d := h.Descriptor()
	return !d.IsPlaceholder() || d.ID() == h.id
}

// Publish swaps in d and notifies every subscriber once.
func (h *Handle) Publish(d *Descriptor) {
	if d == nil {
		panic("resource: publish nil descriptor into " + h.name)
	}
	if d.id == 0 {
		d.id = h.id
	}
	h.cur.Store(d)
	h.notify(d)
}

// Notify re-runs every subscriber against the current descriptor. It is
// used after native state was recreated in place.
func (h *Handle) Notify() {
	h.notify(h.Descriptor())
}

func (h *Handle) notify(d *Descriptor) {
	h.mu.Lock()
	subs := make([]subscription, len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	for _, s := range subs {
		s.fn(d)
	}
}

// Subscribe registers fn for future replacements. The returned function
// removes the subscription; calling it more than once is harmless.
func (h *Handle) Subscribe(fn Subscriber) (unsubscribe func()) {
	h.mu.Lock()
	h.nextSub++
	id := h.nextSub
	h.subs = append(h.subs, subscription{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(id) })
	}
}

func (h *Handle) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subs {
		if s.id == id {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			return
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Handle) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
