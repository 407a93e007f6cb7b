package render

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/valydumitru01/Burst/internal/gpu"
)

// near compares component-wise with an absolute tolerance; mgl32's
// ApproxEqualThreshold is relative and too strict around zero.
func near(a, b mgl32.Vec3, tol float64) bool {
	for i := range 3 {
		if math.Abs(float64(a[i]-b[i])) > tol {
			return false
		}
	}
	return true
}

func TestCameraStartsLookingDownNegativeZ(t *testing.T) {
	c := NewCamera(800, 600, mgl32.Vec3{})
	f := c.Front()
	if !near(f, mgl32.Vec3{0, 0, -1}, 1e-5) {
		t.Fatalf("front = %v", f)
	}
	if r := c.Right(); !near(r, mgl32.Vec3{1, 0, 0}, 1e-5) {
		t.Errorf("right = %v", r)
	}
}

func TestCameraPitchIsClamped(t *testing.T) {
	c := NewCamera(800, 600, mgl32.Vec3{})
	c.Look(0, 0)
	c.Look(0, -10000)
	if c.Pitch != maxPitch {
		t.Errorf("pitch = %v, want %v", c.Pitch, maxPitch)
	}
	c.Look(0, 10000)
	if c.Pitch != -maxPitch {
		t.Errorf("pitch = %v, want %v", c.Pitch, -maxPitch)
	}
}

func TestCameraMove(t *testing.T) {
	c := NewCamera(800, 600, mgl32.Vec3{})
	c.Move(1, 0, 0, 5)
	if !near(c.Position, mgl32.Vec3{0, 0, -5}, 1e-4) {
		t.Errorf("position = %v", c.Position)
	}
	c.Move(0, 0, 0, 5)
	if !near(c.Position, mgl32.Vec3{0, 0, -5}, 1e-4) {
		t.Errorf("zero move changed position to %v", c.Position)
	}
}

func TestFrustumCullsChunkBoxes(t *testing.T) {
	c := NewCamera(800, 600, mgl32.Vec3{})
	f := NewFrustum(c.ViewProjection())

	tests := []struct {
		name   string
		origin mgl32.Vec3
		want   bool
	}{
		{"ahead", mgl32.Vec3{-16, -16, -64}, true},
		{"around the eye", mgl32.Vec3{-16, -16, -16}, true},
		{"behind", mgl32.Vec3{-16, -16, 64}, false},
		{"far to the side", mgl32.Vec3{-1000, 0, -40}, false},
		{"past the far plane", mgl32.Vec3{0, 0, -5000}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds := []gpu.DrawCommand{{Origin: tt.origin}}
			got := len(f.Cull(nil, cmds, 32)) == 1
			if got != tt.want {
				t.Errorf("visible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizePlane(t *testing.T) {
	p := normalizePlane(plane{3, 0, 4, 10})
	if l := math.Sqrt(float64(p.a*p.a + p.b*p.b + p.c*p.c)); math.Abs(l-1) > 1e-6 {
		t.Errorf("normal length = %v", l)
	}
	if p.d != 2 {
		t.Errorf("d = %v, want 2", p.d)
	}
	if z := normalizePlane(plane{}); z != (plane{}) {
		t.Errorf("degenerate plane changed: %v", z)
	}
}

type usage struct{ used map[gpu.BufferID]uint64 }

func (u *usage) Use(frame uint64, ids ...gpu.BufferID) {
	for _, id := range ids {
		u.used[id] = frame
	}
}

func TestHeadlessDrawsOnlyVisibleChunks(t *testing.T) {
	u := &usage{used: make(map[gpu.BufferID]uint64)}
	h := NewHeadless(u, 32)
	cam := NewCamera(800, 600, mgl32.Vec3{})
	cmds := []gpu.DrawCommand{
		{VertexBuffer: 1, IndexBuffer: 2, IndexCount: 36, Origin: mgl32.Vec3{-16, -16, -64}},
		{VertexBuffer: 3, IndexBuffer: 4, IndexCount: 6, Origin: mgl32.Vec3{-16, -16, 64}},
	}
	st, err := h.Draw(7, cam, cmds)
	if err != nil {
		t.Fatal(err)
	}
	want := Stats{Submitted: 2, Drawn: 1, Culled: 1, Triangles: 12}
	if st != want {
		t.Errorf("stats = %+v, want %+v", st, want)
	}
	if u.used[1] != 7 || u.used[2] != 7 {
		t.Errorf("visible buffers not marked: %v", u.used)
	}
	if _, ok := u.used[3]; ok {
		t.Error("culled buffers were marked as used")
	}
}
