package bufferpool

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/tuannm99/novapage/internal/storage"
)

var (
	DefaultCapacity = 128

	ErrNoFreeBuffer = errors.New("bufferpool: no free buffer available (all in use)")
)

var _ storage.Allocator = (*Pool)(nil)

// Pool carves one arena into capacity fixed-size page regions and hands
// them out through a free list. Allocate never blocks: an exhausted pool
// fails with ErrNoFreeBuffer.
type Pool struct {
	pageSize int
	arena    []byte
	buffers  [][]byte
	free     chan int

	mu    sync.Mutex
	inUse map[*byte]int // region start -> buffer index
}

func NewPool(pageSize, capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if pageSize <= 0 {
		pageSize = storage.PageSize
	}

	arena := make([]byte, capacity*pageSize)
	buffers := make([][]byte, capacity)
	free := make(chan int, capacity)
	for i := 0; i < capacity; i++ {
		start := i * pageSize
		end := start + pageSize
		buffers[i] = arena[start:end:end] // full slice expression
		free <- i
	}

	return &Pool{
		pageSize: pageSize,
		arena:    arena,
		buffers:  buffers,
		free:     free,
		inUse:    make(map[*byte]int, capacity),
	}
}

func (p *Pool) PageSize() int { return p.pageSize }

func (p *Pool) Allocate() ([]byte, error) {
	select {
	case id := <-p.free:
		buf := p.buffers[id]
		p.mu.Lock()
		p.inUse[unsafe.SliceData(buf)] = id
		p.mu.Unlock()
		return buf, nil
	default:
		return nil, ErrNoFreeBuffer
	}
}

// Free returns a region obtained from Allocate. Foreign slices and repeated
// frees of the same region are ignored.
func (p *Pool) Free(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	key := unsafe.SliceData(buf)

	p.mu.Lock()
	id, ok := p.inUse[key]
	if ok {
		delete(p.inUse, key)
	}
	p.mu.Unlock()

	if ok {
		clear(p.buffers[id])
		p.free <- id
	}
}

// InUse is the number of regions currently handed out.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}

func (p *Pool) Capacity() int { return len(p.buffers) }
