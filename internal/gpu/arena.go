package gpu

import (
	"fmt"

	"github.com/valydumitru01/Burst/internal/world"
)

// Handle names a chunk's GPU mesh. The generation makes handles to a reused
// slot distinguishable from the slot's new owner.
type Handle struct {
	index      uint32
	generation uint32
}

// Valid reports whether h was ever issued. The zero Handle is never valid.
func (h Handle) Valid() bool { return h.generation != 0 }

func (h Handle) String() string {
	return fmt.Sprintf("mesh#%d.%d", h.index, h.generation)
}

// resource is one GPU mesh: its buffers and the counts needed to draw it.
type resource struct {
	generation uint32
	live       bool
	retired    bool // queued for freeing; buffers are owned by the ring

	coord        world.ChunkCoord
	vertexBuffer BufferID
	indexBuffer  BufferID
	vertexCount  int
	indexCount   int
	bytes        int
	uploaded     uint64 // frame that recorded the upload
}

func (r *resource) buffers() []BufferID {
	var out []BufferID
	if r.vertexBuffer != 0 {
		out = append(out, r.vertexBuffer)
	}
	if r.indexBuffer != 0 {
		out = append(out, r.indexBuffer)
	}
	return out
}

// arena stores resources in reusable slots addressed by Handle.
type arena struct {
	slots []resource
	free  []uint32
	live  int
}

func (a *arena) alloc(r resource) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, resource{})
	}
	gen := a.slots[idx].generation + 1
	r.generation = gen
	r.live = true
	a.slots[idx] = r
	a.live++
	return Handle{index: idx, generation: gen}
}

// get returns the live resource behind h.
func (a *arena) get(h Handle) (*resource, error) {
	if !h.Valid() || int(h.index) >= len(a.slots) {
		return nil, fmt.Errorf("%w: %v", ErrStaleHandle, h)
	}
	r := &a.slots[h.index]
	if !r.live || r.generation != h.generation {
		return nil, fmt.Errorf("%w: %v", ErrStaleHandle, h)
	}
	return r, nil
}

// release returns h's slot to the free list. The generation stays, so the
// next alloc bumps it and h goes stale.
func (a *arena) release(h Handle) {
	r, err := a.get(h)
	if err != nil {
		return
	}
	gen := r.generation
	*r = resource{generation: gen}
	a.free = append(a.free, h.index)
	a.live--
}
