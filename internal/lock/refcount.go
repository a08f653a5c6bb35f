package locking

// Shared ownership of a page region: every holder of a page handle owns
// one reference and the region goes back to its allocator when the last
// one is dropped.

import (
	"fmt"
	"sync/atomic"
)

type RefCount struct {
	count atomic.Int32
}

// NewRefCount starts with the single reference of the creator.
func NewRefCount() *RefCount {
	r := &RefCount{}
	r.count.Store(1)
	return r
}

func (r *RefCount) Inc() {
	r.count.Add(1)
}

// Dec drops one reference and reports whether it was the last.
func (r *RefCount) Dec() bool {
	n := r.count.Add(-1)
	if n < 0 {
		panic("locking: refcount dropped below zero")
	}
	return n == 0
}

func (r *RefCount) Get() int32 {
	return r.count.Load()
}

func (r *RefCount) String() string {
	return fmt.Sprintf("refs=%d", r.Get())
}
