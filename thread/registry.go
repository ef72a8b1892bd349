package thread

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// Registry is a lock-free-read table of threads keyed by Tid: a bucket-chain
// hash table where each bucket's head pointer is swapped atomically, so Get
// never blocks on a concurrent Set/Del. Specialized to Tid keys rather than
// a generic interface{} key, since every caller here only ever looks
// threads up by Tid.
type Registry struct {
	table []*regBucket
}

type regBucket struct {
	sync.RWMutex
	first *regElem
}

type regElem struct {
	key  Tid
	val  *Thread
	next *regElem
}

// NewRegistry allocates a registry with the given number of buckets.
func NewRegistry(nbuckets int) *Registry {
	if nbuckets < 1 {
		nbuckets = 1
	}
	r := &Registry{table: make([]*regBucket, nbuckets)}
	for i := range r.table {
		r.table[i] = &regBucket{}
	}
	return r
}

func (r *Registry) bucketFor(key Tid) *regBucket {
	h := uint32(2654435761) * uint32(key)
	return r.table[h%uint32(len(r.table))]
}

func loadElem(e **regElem) *regElem {
	ptr := (*unsafe.Pointer)(unsafe.Pointer(e))
	p := atomic.LoadPointer(ptr)
	return (*regElem)(p)
}

func storeElem(p **regElem, n *regElem) {
	ptr := (*unsafe.Pointer)(unsafe.Pointer(p))
	atomic.StorePointer(ptr, unsafe.Pointer(n))
}

// Get looks up a thread by id without taking a bucket lock.
func (r *Registry) Get(key Tid) (*Thread, bool) {
	b := r.bucketFor(key)
	for e := loadElem(&b.first); e != nil; e = loadElem(&e.next) {
		if e.key == key {
			return e.val, true
		}
	}
	return nil, false
}

// Set inserts t under key, panicking if the key is already present -- a
// thread id collision is a kernel bug, not a runtime condition to recover
// from.
func (r *Registry) Set(key Tid, t *Thread) {
	b := r.bucketFor(key)
	b.Lock()
	defer b.Unlock()
	for e := b.first; e != nil; e = e.next {
		if e.key == key {
			panic("registry: duplicate thread id")
		}
	}
	n := &regElem{key: key, val: t, next: b.first}
	storeElem(&b.first, n)
}

// Del removes key from the registry, panicking if it isn't present.
func (r *Registry) Del(key Tid) {
	b := r.bucketFor(key)
	b.Lock()
	defer b.Unlock()
	var last *regElem
	for e := b.first; e != nil; e = e.next {
		if e.key == key {
			if last == nil {
				storeElem(&b.first, e.next)
			} else {
				storeElem(&last.next, e.next)
			}
			return
		}
		last = e
	}
	panic("registry: del of non-existing thread id")
}

// Each calls f for every registered thread. f must not call Set/Del on
// this registry.
func (r *Registry) Each(f func(*Thread)) {
	for _, b := range r.table {
		b.RLock()
		for e := b.first; e != nil; e = e.next {
			f(e.val)
		}
		b.RUnlock()
	}
}

// Len returns the number of threads currently registered.
func (r *Registry) Len() int {
	n := 0
	for _, b := range r.table {
		b.RLock()
		for e := b.first; e != nil; e = e.next {
			n++
		}
		b.RUnlock()
	}
	return n
}
