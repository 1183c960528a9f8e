// Package zone implements the bump-allocated arena that owns every IR object
// created while compiling one function.
//
// The JIT mid-end (hir, lir, regalloc, moveresolve) never frees an individual
// node. Instead, hir.Build and lir.Lower each open a Zone for the function
// they produce and allocate its nodes from it. Release drops a Zone's pools
// as a unit; jit.Compile does not call it, so a Zone's objects are freed by
// the garbage collector together with the Func that holds the Zone.
package zone

// Zone owns every typed Pool created against it so a single Release call can
// drop all of them together. It carries no state of its own beyond the
// chunk size new pools should use; a Zone is not safe for concurrent use —
// each HIR or LIR function owns its own, matching the single-threaded,
// synchronous pipeline the JIT runs as.
type Zone struct {
	chunkCap int
	pools    []releasable
}

type releasable interface {
	release()
}

const defaultChunkCap = 512

// New creates a Zone whose pools preallocate defaultChunkCap elements per chunk.
func New() *Zone {
	return NewSized(defaultChunkCap)
}

// NewSized creates a Zone whose pools preallocate chunkCap elements per chunk.
func NewSized(chunkCap int) *Zone {
	if chunkCap <= 0 {
		chunkCap = defaultChunkCap
	}
	return &Zone{chunkCap: chunkCap}
}

// Release drops every object owned by every pool this zone ever produced.
// The zone may be reused afterwards.
func (z *Zone) Release() {
	for _, p := range z.pools {
		p.release()
	}
	z.pools = z.pools[:0]
}

// Pool is a typed arena for one kind of IR node. Chunks are fixed-capacity
// slices so a pointer handed out by New never moves, even though the pool
// keeps growing — the classic "reslice invalidates pointers" bug is avoided
// by never growing an individual chunk, only appending new ones.
type Pool[T any] struct {
	chunkCap int
	chunks   [][]T
	count    int
}

// NewPool creates a Pool bound to z: z.Release will clear it along with every
// other pool drawn from the same zone.
func NewPool[T any](z *Zone) *Pool[T] {
	p := &Pool[T]{chunkCap: z.chunkCap}
	z.pools = append(z.pools, p)
	return p
}

// New returns a pointer to a fresh, zero-valued T owned by the pool.
func (p *Pool[T]) New() *T {
	if p.count == 0 || p.count%p.chunkCap == 0 {
		p.chunks = append(p.chunks, make([]T, p.chunkCap))
	}
	chunk := p.chunks[len(p.chunks)-1]
	idx := p.count % p.chunkCap
	p.count++
	return &chunk[idx]
}

// Len reports how many objects this pool has produced since creation or the
// owning zone's last Release.
func (p *Pool[T]) Len() int {
	return p.count
}

func (p *Pool[T]) release() {
	p.chunks = nil
	p.count = 0
}
