// Package render turns the uploader's draw descriptors into draw calls.
package render

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	mouseSensitivity = 0.1
	maxPitch         = 89.0
)

// Camera is a free-flying perspective camera. Yaw and pitch are degrees.
type Camera struct {
	Position mgl32.Vec3
	Yaw      float64
	Pitch    float64

	AspectRatio float32
	FOV         float32
	NearPlane   float32
	FarPlane    float32

	firstMouse bool
	lastX      float64
	lastY      float64
}

func NewCamera(width, height int, pos mgl32.Vec3) *Camera {
	c := &Camera{
		Position:   pos,
		Yaw:        -90,
		FOV:        70.0,
		NearPlane:  0.1,
		FarPlane:   2000.0,
		firstMouse: true,
	}
	c.SetViewport(width, height)
	return c
}

func (c *Camera) SetViewport(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	c.AspectRatio = float32(width) / float32(height)
}

func (c *Camera) ProjectionMatrix() mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(c.FOV), c.AspectRatio, c.NearPlane, c.FarPlane)
}

func (c *Camera) Front() mgl32.Vec3 {
	y := mgl32.DegToRad(float32(c.Yaw))
	p := mgl32.DegToRad(float32(c.Pitch))
	fx := float32(math.Cos(float64(y)) * math.Cos(float64(p)))
	fy := float32(math.Sin(float64(p)))
	fz := float32(math.Sin(float64(y)) * math.Cos(float64(p)))
	return mgl32.Vec3{fx, fy, fz}.Normalize()
}

func (c *Camera) Right() mgl32.Vec3 {
	return c.Front().Cross(mgl32.Vec3{0, 1, 0}).Normalize()
}

func (c *Camera) ViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Position.Add(c.Front()), mgl32.Vec3{0, 1, 0})
}

// ViewProjection is the clip matrix used for culling.
func (c *Camera) ViewProjection() mgl32.Mat4 {
	return c.ProjectionMatrix().Mul4(c.ViewMatrix())
}

// Look turns the camera from a cursor position.
func (c *Camera) Look(xpos, ypos float64) {
	if c.firstMouse {
		c.lastX, c.lastY = xpos, ypos
		c.firstMouse = false
		return
	}
	dx := (xpos - c.lastX) * mouseSensitivity
	dy := (c.lastY - ypos) * mouseSensitivity
	c.lastX, c.lastY = xpos, ypos

	c.Yaw += dx
	c.Pitch = max(-maxPitch, min(maxPitch, c.Pitch+dy))
}

// Move flies along the view direction (forward), its right vector and
// world up, scaled by distance.
func (c *Camera) Move(forward, right, up, distance float32) {
	step := c.Front().Mul(forward).Add(c.Right().Mul(right)).Add(mgl32.Vec3{0, up, 0})
	if step.Len() == 0 {
		return
	}
	c.Position = c.Position.Add(step.Normalize().Mul(distance))
}
