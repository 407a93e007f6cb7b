package world

import (
	"fmt"
	"unsafe"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
)

// RecycleCache keeps compressed grids of evicted, unedited chunks so a chunk
// that comes back into range skips noise evaluation. Generation is
// deterministic, so a recycled grid is identical to a regenerated one.
//
// A nil *RecycleCache is valid and caches nothing.
type RecycleCache struct {
	edge  int
	cache *lru.Cache[ChunkCoord, []byte]
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// NewRecycleCache returns a cache holding up to entries grids, or nil when
// entries is zero.
func NewRecycleCache(entries, edge int) (*RecycleCache, error) {
	if entries <= 0 {
		return nil, nil
	}
	cache, err := lru.New[ChunkCoord, []byte](entries)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &RecycleCache{edge: edge, cache: cache, enc: enc, dec: dec}, nil
}

func asBytes(v []Material) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v))
}

func asMaterials(b []byte) []Material {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*Material)(unsafe.Pointer(&b[0])), len(b))
}

// Put stores a pristine grid for coord. The grid is compressed immediately
// and not retained.
func (r *RecycleCache) Put(coord ChunkCoord, voxels []Material) {
	if r == nil || len(voxels) != r.edge*r.edge*r.edge {
		return
	}
	r.cache.Add(coord, r.enc.EncodeAll(asBytes(voxels), nil))
}

// Take removes and returns the grid stored for coord.
func (r *RecycleCache) Take(coord ChunkCoord) ([]Material, bool) {
	if r == nil {
		return nil, false
	}
	packed, ok := r.cache.Get(coord)
	if !ok {
		return nil, false
	}
	r.cache.Remove(coord)
	raw, err := r.dec.DecodeAll(packed, make([]byte, 0, r.edge*r.edge*r.edge))
	if err != nil || len(raw) != r.edge*r.edge*r.edge {
		return nil, false
	}
	return asMaterials(raw), true
}

// Generate returns the cached grid for coord if any, otherwise runs g.
func (r *RecycleCache) Generate(g Generator, coord ChunkCoord) (voxels []Material, recycled bool) {
	if v, ok := r.Take(coord); ok {
		return v, true
	}
	return g.Generate(coord), false
}

// Len returns the number of cached grids.
func (r *RecycleCache) Len() int {
	if r == nil {
		return 0
	}
	return r.cache.Len()
}

// Close releases the codec resources.
func (r *RecycleCache) Close() error {
	if r == nil {
		return nil
	}
	r.dec.Close()
	if err := r.enc.Close(); err != nil {
		return fmt.Errorf("recycle cache: %w", err)
	}
	return nil
}
