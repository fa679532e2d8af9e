// Package dom implements the generic event-target subsystem: listener
// registration, event records, and the dispatch engine that walks the
// structural parent chain.
package dom

// Listener receives dispatched events.
type Listener interface {
	HandleEvent(ev *Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev *Event) error

// HandleEvent calls f.
func (f ListenerFunc) HandleEvent(ev *Event) error { return f(ev) }

// Handle is an explicitly reference-counted callback. Every registry entry
// holds one reference; removing the entry or disposing the target releases it.
// When the last reference is released the handle's release hook runs once.
type Handle struct {
	listener  Listener
	refs      int
	released  bool
	onRelease func()
}

// NewHandle wraps l. The returned handle holds no references until it is
// registered on a target.
func NewHandle(l Listener) *Handle {
	return &Handle{listener: l}
}

// HandleFunc is shorthand for NewHandle(ListenerFunc(fn)).
func HandleFunc(fn func(ev *Event) error) *Handle {
	return NewHandle(ListenerFunc(fn))
}

// Listener returns the wrapped callback.
func (h *Handle) Listener() Listener { return h.listener }

// Refs returns the number of live references.
func (h *Handle) Refs() int { return h.refs }

// OnRelease sets fn to run when the reference count drops to zero.
func (h *Handle) OnRelease(fn func()) { h.onRelease = fn }

// Retain adds a reference.
func (h *Handle) Retain() {
	h.refs++
	h.released = false
}

// Release drops a reference. Releasing an unreferenced handle is a no-op.
func (h *Handle) Release() {
	if h.refs == 0 {
		return
	}
	h.refs--
	if h.refs == 0 && !h.released {
		h.released = true
		if h.onRelease != nil {
			h.onRelease()
		}
	}
}
