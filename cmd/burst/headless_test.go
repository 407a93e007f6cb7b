package main

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/valydumitru01/Burst/internal/render"
)

func TestFlightPathLooksAlongTheCircle(t *testing.T) {
	cam := render.NewCamera(640, 480, mgl32.Vec3{})
	for _, i := range []int{0, 100, 700} {
		p0, yaw := flightPath(i, 2, 50)
		p1, _ := flightPath(i+1, 2, 50)
		cam.Yaw = yaw
		step := p1.Sub(p0).Normalize()
		if d := step.Dot(cam.Front()); d < 0.99 {
			t.Errorf("frame %d: heading off the path (dot %.3f)", i, d)
		}
		if p0.Y() != 50 {
			t.Errorf("frame %d: altitude %v", i, p0.Y())
		}
	}
}
