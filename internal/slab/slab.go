// Package slab implements a fixed-capacity, intrusive free-list slab
// providing stable integer handles with O(1) insert/remove/get and
// ascending-handle iteration.
//
// A Handle is the engine's only way to address a client: the backing
// storage never moves an element once inserted, so a readiness
// registration (or, in this Go port, a goroutine closure) can hold a
// Handle indefinitely without risking delivery to the wrong record after
// unrelated insert/remove traffic.
package slab

import "sync"

// Handle is a stable slot index returned by Insert and used by Get,
// Remove, and Contains. A Handle remains valid until the corresponding
// element is removed.
type Handle int

// noHandle marks the absence of a neighbor in the occupied/vacant chains.
const noHandle Handle = -1

type entry[T any] struct {
	occupied bool
	prev     Handle // occupied-chain predecessor, or vacant-chain unused
	next     Handle // occupied-chain successor, or next vacant slot
	value    T
}

// Slab is a fixed-capacity slab of type T. The zero value is not usable;
// construct with New.
type Slab[T any] struct {
	mu       sync.Mutex
	entries  []entry[T]
	capacity int
	len      int
	end      int // one past the highest index ever allocated
	nextFree Handle
	first    Handle
	last     Handle
}

// ErrFull is returned by Insert when the slab has no vacant slot, i.e.
// capacity elements are all occupied.
type ErrFull struct{}

func (ErrFull) Error() string { return "slab: full" }

// New creates an empty slab with the given fixed capacity.
func New[T any](capacity int) *Slab[T] {
	return &Slab[T]{
		entries:  make([]entry[T], capacity),
		capacity: capacity,
		nextFree: 0,
		first:    noHandle,
		last:     noHandle,
	}
}

// Len returns the number of occupied slots.
func (s *Slab[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.len
}

// Cap returns the slab's fixed capacity.
func (s *Slab[T]) Cap() int { return s.capacity }

// Insert places element into the slot at the head of the free list and
// returns its handle: the most recently vacated slot if there is one
// (LIFO reuse), otherwise the next never-used slot. It fails with ErrFull
// if the slab has no room. Appending a
// never-before-used slot is O(1); reusing a previously-vacated slot
// requires rediscovering its occupied-chain neighbors, bounded by the
// slab's capacity — the same tradeoff the original C slab makes.
func (s *Slab[T]) Insert(element T) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nextFree == Handle(s.capacity) {
		return 0, ErrFull{}
	}

	index := s.nextFree
	e := &s.entries[index]
	recycledNext := e.next // only meaningful when reusing a vacated slot

	e.occupied = true
	e.value = element
	s.len++

	if int(index) == s.end {
		// Never-before-used slot: extend the occupied chain at the tail.
		e.prev = s.last
		e.next = noHandle
		if s.last != noHandle {
			s.entries[s.last].next = index
		}
		s.last = index
		if s.first == noHandle {
			s.first = index
		}
		s.nextFree++
		s.end++
	} else {
		// Reused a vacated slot: splice it back into the occupied chain at
		// its correct sorted position.
		e.prev = s.predecessorOf(index)
		e.next = s.successorOf(index)
		if e.prev != noHandle {
			s.entries[e.prev].next = index
		} else {
			s.first = index
		}
		if e.next != noHandle {
			s.entries[e.next].prev = index
		} else {
			s.last = index
		}
		s.nextFree = recycledNext
	}

	return index, nil
}

// predecessorOf scans downward from index for the nearest occupied slot
// below it. Only called while inserting at `index`, which is not yet
// marked occupied, so the scan correctly skips it.
func (s *Slab[T]) predecessorOf(index Handle) Handle {
	for i := index - 1; i >= 0; i-- {
		if s.entries[i].occupied {
			return i
		}
	}
	return noHandle
}

// successorOf scans upward from index for the nearest occupied slot above
// it, bounded by the highest index ever allocated.
func (s *Slab[T]) successorOf(index Handle) Handle {
	for i := index + 1; int(i) < s.end; i++ {
		if s.entries[i].occupied {
			return i
		}
	}
	return noHandle
}

// Remove vacates the slot for handle, unlinking it from the occupied
// chain and pushing it onto the head of the free list (LIFO reuse).
func (s *Slab[T]) Remove(handle Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(handle)
}

func (s *Slab[T]) remove(handle Handle) {
	e := &s.entries[handle]
	if !e.occupied {
		return
	}
	e.occupied = false
	s.len--

	if handle == s.first {
		s.first = e.next
	}
	if handle == s.last {
		s.last = e.prev
	}
	if e.prev != noHandle {
		s.entries[e.prev].next = e.next
	}
	if e.next != noHandle {
		s.entries[e.next].prev = e.prev
	}

	recycledNext := s.nextFree
	s.nextFree = handle
	e.next = recycledNext
	var zero T
	e.value = zero
}

// Contains reports whether handle currently refers to an occupied slot.
func (s *Slab[T]) Contains(handle Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contains(handle)
}

func (s *Slab[T]) contains(handle Handle) bool {
	if handle < 0 || int(handle) >= s.end {
		return false
	}
	return s.entries[handle].occupied
}

// Get returns the value stored at handle and whether it is occupied.
func (s *Slab[T]) Get(handle Handle) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.contains(handle) {
		var zero T
		return zero, false
	}
	return s.entries[handle].value, true
}

// Update replaces the value stored at handle, returning false if the
// slot is vacant.
func (s *Slab[T]) Update(handle Handle, value T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.contains(handle) {
		return false
	}
	s.entries[handle].value = value
	return true
}

// Mutate calls fn with a pointer to the value stored at handle, allowing
// in-place updates without a copy-update-Update round trip. Returns false
// if the slot is vacant.
func (s *Slab[T]) Mutate(handle Handle, fn func(*T)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.contains(handle) {
		return false
	}
	fn(&s.entries[handle].value)
	return true
}

// Each calls fn for every occupied slot in ascending handle order. It
// snapshots the next handle before invoking fn, so fn may call Remove on
// the handle it was just given (including removing itself) without
// corrupting the iteration.
func (s *Slab[T]) Each(fn func(Handle, T)) {
	s.mu.Lock()
	cur := s.first
	s.mu.Unlock()

	for cur != noHandle {
		s.mu.Lock()
		if !s.contains(cur) {
			s.mu.Unlock()
			break
		}
		value := s.entries[cur].value
		next := s.entries[cur].next
		s.mu.Unlock()

		fn(cur, value)
		cur = next
	}
}

// Handles returns a snapshot of all currently occupied handles in
// ascending order.
func (s *Slab[T]) Handles() []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Handle, 0, s.len)
	for cur := s.first; cur != noHandle; cur = s.entries[cur].next {
		out = append(out, cur)
	}
	return out
}
