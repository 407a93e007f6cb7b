package world

import (
	"fmt"
	"sync"
)

// Index returns the flat offset of local voxel (x, y, z) in a grid of the
// given edge. X varies fastest.
func Index(edge, x, y, z int) int {
	return (y*edge+z)*edge + x
}

// Chunk is a cubic grid of voxels plus the pipeline metadata attached to it.
// Voxel writes and state transitions happen on the owner thread; readers on
// other goroutines are served under the chunk's lock.
//
// A grid handed out by Snapshot is never written again. This is what keeps a
// GpuResident chunk's extracted grid immutable: SetVoxel on a resident chunk
// writes a private copy, bumps the version and leaves the state alone, so the
// uploaded mesh stays drawable until its re-extraction moves the chunk back
// through Meshed.
type Chunk struct {
	mu sync.RWMutex

	coord ChunkCoord
	edge  int
	id    uint64 // unique per store insertion

	voxels []Material // nil until generated
	shared bool       // voxels handed out by Snapshot; copy before writing
	solid  int

	state State
	dirty bool // edited after generation

	version       uint64 // bumped whenever the extracted mesh would change
	meshedVersion uint64
	gpuHeld       bool // uploader owns a resource for this chunk
}

// NewChunk returns an Empty chunk at coord. The store assigns the id.
func NewChunk(coord ChunkCoord, edge int) *Chunk {
	return &Chunk{coord: coord, edge: edge, state: StateEmpty}
}

func (c *Chunk) Coord() ChunkCoord { return c.coord }
func (c *Chunk) Edge() int         { return c.edge }
func (c *Chunk) ID() uint64        { return c.id }

func (c *Chunk) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Transition moves the chunk to next, refusing anything the pipeline does not
// allow.
func (c *Chunk) Transition(next State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(next)
}

func (c *Chunk) transitionLocked(next State) error {
	if !c.state.CanTransition(next) {
		return fmt.Errorf("%w: chunk %v %v -> %v", ErrInvalidTransition, c.coord, c.state, next)
	}
	c.state = next
	return nil
}

// Fill installs generated voxels and moves the chunk to Generated. The chunk
// takes ownership of voxels.
func (c *Chunk) Fill(voxels []Material) error {
	if len(voxels) != c.edge*c.edge*c.edge {
		return fmt.Errorf("chunk %v: grid has %d voxels, want %d", c.coord, len(voxels), c.edge*c.edge*c.edge)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.transitionLocked(StateGenerated); err != nil {
		return err
	}
	c.voxels = voxels
	c.shared = false
	c.solid = 0
	for _, m := range voxels {
		if m.Solid() {
			c.solid++
		}
	}
	c.version++
	return nil
}

// Voxel returns the material at local (x, y, z). Out-of-range or ungenerated
// voxels read as Air.
func (c *Chunk) Voxel(x, y, z int) Material {
	if x < 0 || x >= c.edge || y < 0 || y >= c.edge || z < 0 || z >= c.edge {
		return Air
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.voxels == nil {
		return Air
	}
	return c.voxels[Index(c.edge, x, y, z)]
}

// SetVoxel edits one voxel. It reports whether anything changed. A grid
// currently handed to an extraction is copied first.
func (c *Chunk) SetVoxel(x, y, z int, m Material) (bool, error) {
	if x < 0 || x >= c.edge || y < 0 || y >= c.edge || z < 0 || z >= c.edge {
		return false, fmt.Errorf("chunk %v: voxel (%d,%d,%d) out of range", c.coord, x, y, z)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.AtLeastGenerated() {
		return false, fmt.Errorf("chunk %v: cannot edit in state %v", c.coord, c.state)
	}
	i := Index(c.edge, x, y, z)
	old := c.voxels[i]
	if old == m {
		return false, nil
	}
	if c.shared {
		c.voxels = append([]Material(nil), c.voxels...)
		c.shared = false
	}
	c.voxels[i] = m
	switch {
	case old.Solid() && !m.Solid():
		c.solid--
	case !old.Solid() && m.Solid():
		c.solid++
	}
	c.dirty = true
	c.version++
	return true, nil
}

// Snapshot returns the voxel grid for read-only use off the owner thread.
// Later edits copy the grid instead of mutating the returned slice.
func (c *Chunk) Snapshot() []Material {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shared = true
	return c.voxels
}

// Boundary returns a copy of the voxel layer on face f, indexed by
// BoundaryIndex. It returns nil if the chunk has no voxels yet.
func (c *Chunk) Boundary(f Face) []Material {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.voxels == nil {
		return nil
	}
	e := c.edge
	layer := 0
	if f.Positive() {
		layer = e - 1
	}
	out := make([]Material, e*e)
	for a := range e {
		for b := range e {
			var x, y, z int
			switch f.Axis() {
			case 0:
				x, y, z = layer, a, b
			case 1:
				x, y, z = a, layer, b
			default:
				x, y, z = a, b, layer
			}
			out[a*e+b] = c.voxels[Index(e, x, y, z)]
		}
	}
	return out
}

// BoundaryIndex returns the offset into a boundary slice on an axis for the
// voxel at local position p. The two in-plane axes are taken in X, Y, Z order.
func BoundaryIndex(edge, axis int, p [3]int) int {
	switch axis {
	case 0:
		return p[1]*edge + p[2]
	case 1:
		return p[0]*edge + p[2]
	default:
		return p[0]*edge + p[1]
	}
}

func (c *Chunk) SolidCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.solid
}

// Dirty reports whether the chunk was edited after generation.
func (c *Chunk) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

func (c *Chunk) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Invalidate marks the current mesh stale, e.g. after a neighbor arrived.
func (c *Chunk) Invalidate() {
	c.mu.Lock()
	c.version++
	c.mu.Unlock()
}

// NeedsMesh reports whether the chunk should be (re-)extracted.
func (c *Chunk) NeedsMesh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.state {
	case StateGenerated:
		return true
	case StateMeshed, StateGpuResident:
		return c.meshedVersion != c.version
	}
	return false
}

// MarkMeshed records a completed extraction of the given version.
func (c *Chunk) MarkMeshed(version uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.transitionLocked(StateMeshed); err != nil {
		return err
	}
	c.meshedVersion = version
	return nil
}

// MeshCurrent reports whether the last extraction saw the latest voxels.
func (c *Chunk) MeshCurrent() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state != StateGenerated && c.meshedVersion == c.version
}

// SetGPUHeld records whether the uploader owns a resource for the chunk.
// A held chunk cannot be removed from the store.
func (c *Chunk) SetGPUHeld(held bool) {
	c.mu.Lock()
	c.gpuHeld = held
	c.mu.Unlock()
}

func (c *Chunk) GPUHeld() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gpuHeld
}
