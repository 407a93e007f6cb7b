package world

import "math"

// Deterministic lattice value noise. Every sample is a pure function of its
// position and seed, so chunks can be generated in any order.

const golden = 0x9E3779B97F4A7C15

// mix64 is the SplitMix64 finalizer.
func mix64(v uint64) uint64 {
	v += golden
	v = (v ^ (v >> 30)) * 0xBF58476D1CE4E5B9
	v = (v ^ (v >> 27)) * 0x94D049BB133111EB
	return v ^ (v >> 31)
}

func hash2(x, z, seed int64) uint64 {
	return mix64(uint64(x)*0xD6E8FEB86659FD93 + uint64(z)*0x9FB21C651E98DF25 + uint64(seed)*golden)
}

func hash3(x, y, z, seed int64) uint64 {
	return mix64(uint64(x)*golden + uint64(y)*0x517CC1B727220A95 + uint64(z)*0x6C62272E07BB0142 + uint64(seed))
}

// unit maps a hash to [0,1].
func unit(h uint64) float64 {
	return float64(h&0xFFFFFFFF) / float64(0xFFFFFFFF)
}

// fade is the quintic smoothstep 6t^5 - 15t^4 + 10t^3.
func fade(t float64) float64 {
	return t * t * t * (t*(t*6-15) + 10)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

func smoothstep(a, b, x float64) float64 {
	t := math.Max(0, math.Min(1, (x-a)/(b-a)))
	return t * t * (3 - 2*t)
}

// Noise samples smooth value noise for one seed.
type Noise struct {
	seed int64
}

func NewNoise(seed int64) Noise { return Noise{seed: seed} }

// At2 samples 2D noise in [0,1].
func (n Noise) At2(x, z float64) float64 {
	return n.at2(x, z, n.seed)
}

func (n Noise) at2(x, z float64, seed int64) float64 {
	x0, z0 := math.Floor(x), math.Floor(z)
	ix, iz := int64(x0), int64(z0)
	fx, fz := fade(x-x0), fade(z-z0)

	a := lerp(unit(hash2(ix, iz, seed)), unit(hash2(ix+1, iz, seed)), fx)
	b := lerp(unit(hash2(ix, iz+1, seed)), unit(hash2(ix+1, iz+1, seed)), fx)
	return lerp(a, b, fz)
}

// At3 samples 3D noise in [0,1].
func (n Noise) At3(x, y, z float64) float64 {
	return n.at3(x, y, z, n.seed)
}

func (n Noise) at3(x, y, z float64, seed int64) float64 {
	x0, y0, z0 := math.Floor(x), math.Floor(y), math.Floor(z)
	ix, iy, iz := int64(x0), int64(y0), int64(z0)
	fx, fy, fz := fade(x-x0), fade(y-y0), fade(z-z0)

	corner := func(dx, dy, dz int64) float64 {
		return unit(hash3(ix+dx, iy+dy, iz+dz, seed))
	}
	// trilinear: X, then Y, then Z
	c00 := lerp(corner(0, 0, 0), corner(1, 0, 0), fx)
	c10 := lerp(corner(0, 1, 0), corner(1, 1, 0), fx)
	c01 := lerp(corner(0, 0, 1), corner(1, 0, 1), fx)
	c11 := lerp(corner(0, 1, 1), corner(1, 1, 1), fx)
	return lerp(lerp(c00, c10, fy), lerp(c01, c11, fy), fz)
}

// Octaves configures fractal sums.
type Octaves struct {
	Count       int
	Persistence float64
	Lacunarity  float64
}

// Fbm2 sums octaves of 2D noise, normalized to [0,1].
func (n Noise) Fbm2(x, z float64, o Octaves) float64 {
	amp, freq, sum, norm := 1.0, 1.0, 0.0, 0.0
	for i := range o.Count {
		sum += n.at2(x*freq, z*freq, n.seed+int64(i*131)) * amp
		norm += amp
		amp *= o.Persistence
		freq *= o.Lacunarity
	}
	if norm == 0 {
		return 0
	}
	return sum / norm
}

// Fbm3 sums octaves of 3D noise, normalized to [0,1].
func (n Noise) Fbm3(x, y, z float64, o Octaves) float64 {
	amp, freq, sum, norm := 1.0, 1.0, 0.0, 0.0
	for i := range o.Count {
		sum += n.at3(x*freq, y*freq, z*freq, n.seed+int64(i*131)) * amp
		norm += amp
		amp *= o.Persistence
		freq *= o.Lacunarity
	}
	if norm == 0 {
		return 0
	}
	return sum / norm
}

// Signed maps a [0,1] sample to [-1,1].
func Signed(v float64) float64 { return v*2 - 1 }
