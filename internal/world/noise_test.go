package world

import (
	"math"
	"math/rand"
	"testing"
)

func TestHash3DifferentInputs(t *testing.T) {
	seed := int64(42)
	cases := []struct {
		name  string
		a, b  [3]int64
		seedA int64
		seedB int64
	}{
		{"x", [3]int64{1, 0, 0}, [3]int64{2, 0, 0}, seed, seed},
		{"y", [3]int64{0, 1, 0}, [3]int64{0, 2, 0}, seed, seed},
		{"z", [3]int64{0, 0, 1}, [3]int64{0, 0, 2}, seed, seed},
		{"seed", [3]int64{1, 1, 1}, [3]int64{1, 1, 1}, 100, 200},
		{"axis swap", [3]int64{1, 2, 3}, [3]int64{3, 2, 1}, seed, seed},
	}
	for _, tc := range cases {
		h1 := hash3(tc.a[0], tc.a[1], tc.a[2], tc.seedA)
		h2 := hash3(tc.b[0], tc.b[1], tc.b[2], tc.seedB)
		if h1 == h2 {
			t.Errorf("%s: hash3 collided (%d)", tc.name, h1)
		}
	}
}

func TestNoiseRangeAndDeterminism(t *testing.T) {
	rng := rand.New(rand.NewSource(12345))
	n := NewNoise(42)
	o := Octaves{Count: 4, Persistence: 0.5, Lacunarity: 2}

	for range 1000 {
		x := rng.Float64()*200 - 100
		y := rng.Float64()*200 - 100
		z := rng.Float64()*200 - 100

		for name, v := range map[string]float64{
			"At2":  n.At2(x, z),
			"At3":  n.At3(x, y, z),
			"Fbm2": n.Fbm2(x, z, o),
			"Fbm3": n.Fbm3(x, y, z, o),
		} {
			if v < 0 || v > 1 {
				t.Fatalf("%s(%f,%f,%f) = %f, want [0,1]", name, x, y, z, v)
			}
		}
		if a, b := n.Fbm3(x, y, z, o), NewNoise(42).Fbm3(x, y, z, o); a != b {
			t.Fatalf("Fbm3 not deterministic: %f vs %f", a, b)
		}
	}
}

func TestNoiseIsContinuous(t *testing.T) {
	n := NewNoise(7)
	const eps = 1e-4
	for i := range 200 {
		x := float64(i) * 0.37
		a := n.At3(x, 1.5, -x)
		b := n.At3(x+eps, 1.5, -x)
		if math.Abs(a-b) > 0.01 {
			t.Fatalf("discontinuity at x=%f: %f vs %f", x, a, b)
		}
	}
}

func TestNoiseMatchesLatticeAtIntegers(t *testing.T) {
	n := NewNoise(99)
	for x := int64(-3); x <= 3; x++ {
		for z := int64(-3); z <= 3; z++ {
			want := unit(hash2(x, z, 99))
			if got := n.At2(float64(x), float64(z)); math.Abs(got-want) > 1e-12 {
				t.Errorf("At2(%d,%d) = %f, want lattice %f", x, z, got, want)
			}
		}
	}
}

func TestSmoothstepClamps(t *testing.T) {
	if got := smoothstep(0.2, 0.8, -1); got != 0 {
		t.Errorf("below range = %f", got)
	}
	if got := smoothstep(0.2, 0.8, 2); got != 1 {
		t.Errorf("above range = %f", got)
	}
	if got := smoothstep(0, 1, 0.5); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("midpoint = %f", got)
	}
}

func TestHash2LatticeIsDecorrelated(t *testing.T) {
	const size = 40
	seed := int64(7)
	steps := [][2]int64{{1, 0}, {0, 1}, {2, -1}, {1, 1}}
	for _, d := range steps {
		var equal int
		var sa, sb, sab, saa, sbb float64
		for x := int64(0); x < size; x++ {
			for z := int64(0); z < size; z++ {
				a := unit(hash2(x, z, seed))
				b := unit(hash2(x+d[0], z+d[1], seed))
				if a == b {
					equal++
				}
				sa += a
				sb += b
				sab += a * b
				saa += a * a
				sbb += b * b
			}
		}
		n := float64(size * size)
		cov := sab/n - (sa/n)*(sb/n)
		corr := cov / math.Sqrt((saa/n-(sa/n)*(sa/n))*(sbb/n-(sb/n)*(sb/n)))
		if equal > 0 {
			t.Errorf("step %v: %d lattice points equal their neighbor", d, equal)
		}
		if math.Abs(corr) > 0.2 {
			t.Errorf("step %v: neighbor correlation %.3f", d, corr)
		}
	}
}
