// Package arena implements the hierarchical ownership model described in
// spec §4.C and the "Arena + reparenting" redesign note in spec §9: a
// parent frees all descendants, ownership can be transferred between
// parents (reparenting), and two handles may share one allocation via
// reference-counted "links". Go has no manual memory to free, so an
// Arena here owns not bytes but Closers (destructors) — freeing a Device's
// arena runs the destructors of every option, resource, and scratch value
// it accumulated while mounted and parsed.
package arena

import "sync"

// Destructor runs when the allocation it is attached to is finally freed
// (its last link dropped or an ancestor arena freed). Destructors run
// child-first: a handle's own destructor runs after all of its children's.
type Destructor func()

// Handle is a single owned allocation inside an Arena. It may be shared by
// more than one owner via Link; the underlying destructor runs once, when
// the last link is dropped.
type Handle struct {
	mu      sync.Mutex
	arena   *Arena
	value   interface{}
	destroy Destructor
	links   int
	freed   bool
}

// Value returns the value this handle carries; the zero value once freed.
func (h *Handle) Value() interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.freed {
		return nil
	}
	return h.value
}

// Link increments the reference count and returns the same handle, so
// callers can pass it to a second owner without it being freed while
// still reachable from the first.
func (h *Handle) Link() *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.freed {
		h.links++
	}
	return h
}

// Release drops one link. When the last link is dropped the destructor
// runs and the handle is detached from its arena. Idempotent: releasing
// an already-freed handle is a no-op.
func (h *Handle) Release() {
	h.mu.Lock()
	if h.freed {
		h.mu.Unlock()
		return
	}
	h.links--
	if h.links > 0 {
		h.mu.Unlock()
		return
	}
	h.freed = true
	destroy := h.destroy
	a := h.arena
	h.mu.Unlock()

	if a != nil {
		a.detach(h)
	}
	if destroy != nil {
		destroy()
	}
}

// Reparent transfers ownership of h from its current arena to newParent.
// Freeing the old arena no longer frees h; freeing newParent will.
func (h *Handle) Reparent(newParent *Arena) {
	h.mu.Lock()
	old := h.arena
	h.mu.Unlock()

	if old != nil {
		old.detach(h)
	}
	h.mu.Lock()
	h.arena = newParent
	h.mu.Unlock()
	if newParent != nil {
		newParent.attach(h)
	}
}

// Arena is a scope that owns a set of Handles and child Arenas. Freeing an
// Arena recursively frees every child Arena first, then every Handle
// allocated directly in it.
type Arena struct {
	mu       sync.Mutex
	parent   *Arena
	children map[*Arena]struct{}
	handles  map[*Handle]struct{}
	freed    bool
}

// New creates a root arena with no parent.
func New() *Arena {
	return &Arena{
		children: make(map[*Arena]struct{}),
		handles:  make(map[*Handle]struct{}),
	}
}

// NewChild creates a sub-arena owned by a (e.g. a per-parse scope nested
// under a per-device arena, per spec §4.C/§9).
func (a *Arena) NewChild() *Arena {
	child := New()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.freed {
		// Creating a child of an already-freed arena is legal but it is
		// freed immediately: there is nothing left to attach it to.
		child.Free()
		return child
	}
	child.parent = a
	a.children[child] = struct{}{}
	return child
}

// Alloc creates a new handle owned by a, with an optional destructor that
// runs when the handle is finally freed.
func (a *Arena) Alloc(value interface{}, destroy Destructor) *Handle {
	h := &Handle{arena: a, value: value, destroy: destroy, links: 1}
	a.attach(h)
	return h
}

func (a *Arena) attach(h *Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.freed {
		a.mu.Unlock()
		h.Release()
		a.mu.Lock()
		return
	}
	a.handles[h] = struct{}{}
}

func (a *Arena) detach(h *Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.handles, h)
}

func (a *Arena) detachChild(child *Arena) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.children, child)
}

// Free recursively frees every child arena, then every handle directly
// owned by a. Idempotent: freeing an already-freed arena is a no-op.
func (a *Arena) Free() {
	a.mu.Lock()
	if a.freed {
		a.mu.Unlock()
		return
	}
	a.freed = true
	children := make([]*Arena, 0, len(a.children))
	for c := range a.children {
		children = append(children, c)
	}
	handles := make([]*Handle, 0, len(a.handles))
	for h := range a.handles {
		handles = append(handles, h)
	}
	parent := a.parent
	a.mu.Unlock()

	for _, c := range children {
		c.Free()
	}
	for _, h := range handles {
		h.Release()
	}
	if parent != nil {
		parent.detachChild(a)
	}
}
