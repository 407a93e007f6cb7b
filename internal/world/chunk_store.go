package world

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrDuplicateChunk is returned when a coordinate already has an owner.
	ErrDuplicateChunk = errors.New("chunk already present")
	// ErrChunkResident is returned when removing a chunk whose GPU resource
	// has not been retired yet.
	ErrChunkResident = errors.New("chunk still GPU resident")
	// ErrChunkNotFound is returned for operations on an absent coordinate.
	ErrChunkNotFound = errors.New("chunk not found")
)

// ChunkStore owns every loaded chunk, one per coordinate. Lookups may run
// concurrently; insertions and removals are serialized.
type ChunkStore struct {
	mu       sync.RWMutex
	edge     int
	chunks   map[ChunkCoord]*Chunk
	nextID   uint64
	modCount uint64 // increases on any add/remove
}

// NewChunkStore creates an empty store for chunks of the given edge.
func NewChunkStore(edge int) *ChunkStore {
	return &ChunkStore{
		edge:   edge,
		chunks: make(map[ChunkCoord]*Chunk),
	}
}

// Edge returns the chunk edge length in voxels.
func (cs *ChunkStore) Edge() int { return cs.edge }

// Get returns the chunk at coord, if present.
func (cs *ChunkStore) Get(coord ChunkCoord) (*Chunk, bool) {
	cs.mu.RLock()
	c, ok := cs.chunks[coord]
	cs.mu.RUnlock()
	return c, ok
}

// Has checks for a chunk without returning it.
func (cs *ChunkStore) Has(coord ChunkCoord) bool {
	_, ok := cs.Get(coord)
	return ok
}

// Create inserts a new Empty chunk at coord.
func (cs *ChunkStore) Create(coord ChunkCoord) (*Chunk, error) {
	c := NewChunk(coord, cs.edge)
	if err := cs.Insert(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Insert adds c to the store and assigns its id. A coordinate that already
// has an owner is refused.
func (cs *ChunkStore) Insert(c *Chunk) error {
	if c.edge != cs.edge {
		return fmt.Errorf("chunk %v: edge %d does not match store edge %d", c.coord, c.edge, cs.edge)
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, ok := cs.chunks[c.coord]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicateChunk, c.coord)
	}
	cs.nextID++
	c.id = cs.nextID
	cs.chunks[c.coord] = c
	cs.modCount++
	return nil
}

// Remove releases the chunk at coord. Chunks still backed by a GPU resource
// stay put until the uploader has retired it.
func (cs *ChunkStore) Remove(coord ChunkCoord) (*Chunk, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	c, ok := cs.chunks[coord]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrChunkNotFound, coord)
	}
	if c.State() == StateGpuResident || c.GPUHeld() {
		return nil, fmt.Errorf("%w: %v", ErrChunkResident, coord)
	}
	delete(cs.chunks, coord)
	cs.modCount++
	return c, nil
}

// NeighborBoundary returns the voxel layer of the chunk across face f of
// coord, the layer touching coord. ok is false when that neighbor is absent
// or not yet generated.
func (cs *ChunkStore) NeighborBoundary(coord ChunkCoord, f Face) (cells []Material, ok bool) {
	n, found := cs.Get(coord.Neighbor(f))
	if !found || !n.State().AtLeastGenerated() {
		return nil, false
	}
	cells = n.Boundary(f.Opposite())
	return cells, cells != nil
}

// Len returns the number of chunks in the store.
func (cs *ChunkStore) Len() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.chunks)
}

// Coords returns the coordinates of all chunks, in no particular order.
func (cs *ChunkStore) Coords() []ChunkCoord {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]ChunkCoord, 0, len(cs.chunks))
	for k := range cs.chunks {
		out = append(out, k)
	}
	return out
}

// CountByState tallies chunks per state.
func (cs *ChunkStore) CountByState() map[State]int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[State]int, 5)
	for _, c := range cs.chunks {
		out[c.State()]++
	}
	return out
}

// ModCount returns the current modification count of the chunk map.
func (cs *ChunkStore) ModCount() uint64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.modCount
}

// VoxelAt returns the material at a world voxel position. ok is false when
// the owning chunk is absent or not generated.
func (cs *ChunkStore) VoxelAt(wx, wy, wz int) (m Material, ok bool) {
	coord, lx, ly, lz := SplitVoxel(wx, wy, wz, cs.edge)
	c, found := cs.Get(coord)
	if !found || !c.State().AtLeastGenerated() {
		return Air, false
	}
	return c.Voxel(lx, ly, lz), true
}
