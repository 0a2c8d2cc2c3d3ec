package pool

import (
	"container/list"
	"errors"
	"fmt"
)

type resident[K comparable] struct {
	key    K
	handle Handle
}

// Residency keeps one allocation per key and evicts the least recently used
// keys when the pool runs out of memory.
type Residency[K comparable] struct {
	pool      *Pool
	entries   map[K]*list.Element
	lru       *list.List // front = most recently used
	evictions uint64
}

// NewResidency tracks allocations of p by key.
func NewResidency[K comparable](p *Pool) *Residency[K] {
	return &Residency[K]{
		pool:    p,
		entries: make(map[K]*list.Element),
		lru:     list.New(),
	}
}

// Pool returns the underlying pool.
func (r *Residency[K]) Pool() *Pool { return r.pool }

// Acquire returns a live handle of at least size bytes for key and marks key
// most recently used. An existing allocation is reused when it fits and is no
// more than twice the request. When the pool is exhausted, other keys are
// evicted oldest first until the allocation succeeds or nothing is left to
// evict, in which case the error wraps ErrOutOfMemory.
func (r *Residency[K]) Acquire(key K, size uint64) (h Handle, reused bool, err error) {
	if el, ok := r.entries[key]; ok {
		e := el.Value.(*resident[K])
		if r.pool.Valid(e.handle) && size <= e.handle.Size() && size*2 >= e.handle.Size() {
			r.lru.MoveToFront(el)
			return e.handle, true, nil
		}
		_ = r.remove(el)
	}
	if size > r.pool.Capacity() {
		return Handle{}, false, fmt.Errorf("%w: %d bytes exceeds capacity %d", ErrOutOfMemory, size, r.pool.Capacity())
	}

	for {
		h, err = r.pool.Allocate(size)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrOutOfMemory) {
			return Handle{}, false, err
		}
		oldest := r.lru.Back()
		if oldest == nil {
			return Handle{}, false, err
		}
		slogger().Debug("pool: evicting resident", "handle", oldest.Value.(*resident[K]).handle.String())
		_ = r.remove(oldest)
		r.evictions++
	}

	r.entries[key] = r.lru.PushFront(&resident[K]{key: key, handle: h})
	return h, false, nil
}

// Get returns the handle held for key without changing recency.
func (r *Residency[K]) Get(key K) (Handle, bool) {
	el, ok := r.entries[key]
	if !ok {
		return Handle{}, false
	}
	return el.Value.(*resident[K]).handle, true
}

// Release frees the allocation held for key.
func (r *Residency[K]) Release(key K) error {
	el, ok := r.entries[key]
	if !ok {
		return nil
	}
	return r.remove(el)
}

// Len returns the number of resident keys.
func (r *Residency[K]) Len() int { return len(r.entries) }

// Evictions returns how many keys were evicted to satisfy allocations.
func (r *Residency[K]) Evictions() uint64 { return r.evictions }

// Clear releases every resident allocation.
func (r *Residency[K]) Clear() {
	for el := r.lru.Front(); el != nil; {
		next := el.Next()
		_ = r.remove(el)
		el = next
	}
}

func (r *Residency[K]) remove(el *list.Element) error {
	e := el.Value.(*resident[K])
	r.lru.Remove(el)
	delete(r.entries, e.key)
	if !r.pool.Valid(e.handle) {
		return nil
	}
	return r.pool.Deallocate(e.handle)
}
