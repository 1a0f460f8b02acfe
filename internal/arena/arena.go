// Package arena provides slice-backed storage addressed by typed handles.
//
// Handles start at 1 and grow monotonically; a released handle is never
// handed out again, so a stale handle fails lookup instead of aliasing a
// newer object. The zero handle is always invalid.
package arena

// Handle is the set of integer types usable as arena handles.
type Handle interface {
	~uint32
}

type slot[T any] struct {
	value T
	alive bool
}

// Arena stores values of type T addressed by handles of type H.
// An Arena is not safe for concurrent use.
type Arena[H Handle, T any] struct {
	slots []slot[T]
	live  int
}

// New returns an empty arena.
func New[H Handle, T any]() *Arena[H, T] {
	return &Arena[H, T]{}
}

// Insert stores v under a fresh handle.
func (a *Arena[H, T]) Insert(v T) H {
	a.slots = append(a.slots, slot[T]{value: v, alive: true})
	a.live++
	return H(len(a.slots))
}

// Reserve allocates a fresh handle holding the zero value of T.
func (a *Arena[H, T]) Reserve() H {
	var zero T
	return a.Insert(zero)
}

// Get returns the value stored under h.
func (a *Arena[H, T]) Get(h H) (T, bool) {
	if !a.valid(h) {
		var zero T
		return zero, false
	}
	return a.slots[h-1].value, true
}

// Ptr returns a pointer to the value stored under h, or nil.
// The pointer is invalidated by the next Insert.
func (a *Arena[H, T]) Ptr(h H) *T {
	if !a.valid(h) {
		return nil
	}
	return &a.slots[h-1].value
}

// Set replaces the value stored under a live handle.
func (a *Arena[H, T]) Set(h H, v T) bool {
	if !a.valid(h) {
		return false
	}
	a.slots[h-1].value = v
	return true
}

// Remove releases h. It reports whether h was live.
func (a *Arena[H, T]) Remove(h H) bool {
	if !a.valid(h) {
		return false
	}
	var zero T
	a.slots[h-1] = slot[T]{value: zero}
	a.live--
	return true
}

// Contains reports whether h is live.
func (a *Arena[H, T]) Contains(h H) bool { return a.valid(h) }

// Len returns the number of live handles.
func (a *Arena[H, T]) Len() int { return a.live }

// Last returns the most recently allocated handle, live or not.
func (a *Arena[H, T]) Last() H { return H(len(a.slots)) }

// Each calls fn for every live handle in allocation order.
func (a *Arena[H, T]) Each(fn func(H, T)) {
	for i := range a.slots {
		if a.slots[i].alive {
			fn(H(i+1), a.slots[i].value)
		}
	}
}

func (a *Arena[H, T]) valid(h H) bool {
	return h != 0 && int(h) <= len(a.slots) && a.slots[h-1].alive
}
