package transport

import (
	"sort"
	"sync"
)

// registry keeps callbacks in registration order and hands out disposers
type registry[T any] struct {
	mu    sync.Mutex
	next  uint64
	items map[uint64]T
}

func (r *registry[T]) add(v T) (dispose func()) {
	r.mu.Lock()
	if r.items == nil {
		r.items = make(map[uint64]T)
	}
	id := r.next
	r.next++
	r.items[id] = v
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.items, id)
			r.mu.Unlock()
		})
	}
}

func (r *registry[T]) list() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]uint64, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.items[k])
	}
	return out
}

func (r *registry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
