package locking

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefCount(t *testing.T) {
	r := NewRefCount()
	r.Inc()
	assert.Equal(t, int32(2), r.Get())
	assert.False(t, r.Dec())
	assert.True(t, r.Dec())
	assert.Equal(t, "refs=0", r.String())
	assert.Panics(t, func() { r.Dec() })
}

func TestRefCount_Concurrent(t *testing.T) {
	r := NewRefCount()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Inc()
		}()
	}
	wg.Wait()

	last := 0
	for i := 0; i < 101; i++ {
		if r.Dec() {
			last++
		}
	}
	assert.Equal(t, 1, last)
}
