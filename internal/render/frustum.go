package render

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/valydumitru01/Burst/internal/gpu"
)

// frustumMargin inflates chunk boxes before testing, in voxels.
const frustumMargin float32 = 1.0

type plane struct{ a, b, c, d float32 }

// Frustum holds six normalized planes: left, right, bottom, top, near, far.
type Frustum [6]plane

// NewFrustum extracts the planes of a projection*view matrix.
func NewFrustum(clip mgl32.Mat4) Frustum {
	// mgl32 is column-major
	m00, m01, m02, m03 := clip[0], clip[4], clip[8], clip[12]
	m10, m11, m12, m13 := clip[1], clip[5], clip[9], clip[13]
	m20, m21, m22, m23 := clip[2], clip[6], clip[10], clip[14]
	m30, m31, m32, m33 := clip[3], clip[7], clip[11], clip[15]

	return Frustum{
		normalizePlane(plane{m30 + m00, m31 + m01, m32 + m02, m33 + m03}),
		normalizePlane(plane{m30 - m00, m31 - m01, m32 - m02, m33 - m03}),
		normalizePlane(plane{m30 + m10, m31 + m11, m32 + m12, m33 + m13}),
		normalizePlane(plane{m30 - m10, m31 - m11, m32 - m12, m33 - m13}),
		normalizePlane(plane{m30 + m20, m31 + m21, m32 + m22, m33 + m23}),
		normalizePlane(plane{m30 - m20, m31 - m21, m32 - m22, m33 - m23}),
	}
}

func normalizePlane(p plane) plane {
	l := float32(math.Sqrt(float64(p.a*p.a + p.b*p.b + p.c*p.c)))
	if l == 0 {
		return p
	}
	return plane{p.a / l, p.b / l, p.c / l, p.d / l}
}

// IntersectsAABB reports whether the box is at least partly inside.
func (f *Frustum) IntersectsAABB(lo, hi mgl32.Vec3) bool {
	for _, p := range f {
		// positive vertex for this plane normal
		px, py, pz := hi.X(), hi.Y(), hi.Z()
		if p.a < 0 {
			px = lo.X()
		}
		if p.b < 0 {
			py = lo.Y()
		}
		if p.c < 0 {
			pz = lo.Z()
		}
		if p.a*px+p.b*py+p.c*pz+p.d < 0 {
			return false
		}
	}
	return true
}

// Cull appends to dst the commands whose chunk box is in view.
func (f *Frustum) Cull(dst, cmds []gpu.DrawCommand, edge int) []gpu.DrawCommand {
	size := float32(edge)
	pad := mgl32.Vec3{frustumMargin, frustumMargin, frustumMargin}
	for _, dc := range cmds {
		lo := dc.Origin.Sub(pad)
		hi := dc.Origin.Add(mgl32.Vec3{size, size, size}).Add(pad)
		if f.IntersectsAABB(lo, hi) {
			dst = append(dst, dc)
		}
	}
	return dst
}
