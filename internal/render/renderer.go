package render

import (
	"github.com/valydumitru01/Burst/internal/gpu"
)

// Stats describes one drawn frame.
type Stats struct {
	Submitted int // commands handed in
	Drawn     int
	Culled    int
	Triangles int
}

// Renderer records the draw calls of a frame. It runs on the frame's
// thread after uploads and before the frame is submitted; the buffers named
// by cmds stay valid until that frame completes.
type Renderer interface {
	Draw(frame uint64, cam *Camera, cmds []gpu.DrawCommand) (Stats, error)
}

// BufferUser is a device that tracks which frame reads a buffer.
type BufferUser interface {
	Use(frame uint64, ids ...gpu.BufferID)
}

// Headless culls like a real renderer and reports the surviving buffers as
// read by the frame instead of drawing them.
type Headless struct {
	dev     BufferUser
	edge    int
	visible []gpu.DrawCommand
}

func NewHeadless(dev BufferUser, edge int) *Headless {
	return &Headless{dev: dev, edge: edge}
}

func (h *Headless) Draw(frame uint64, cam *Camera, cmds []gpu.DrawCommand) (Stats, error) {
	f := NewFrustum(cam.ViewProjection())
	h.visible = f.Cull(h.visible[:0], cmds, h.edge)
	st := Stats{Submitted: len(cmds), Drawn: len(h.visible), Culled: len(cmds) - len(h.visible)}
	for _, dc := range h.visible {
		h.dev.Use(frame, dc.VertexBuffer, dc.IndexBuffer)
		st.Triangles += dc.IndexCount / 3
	}
	return st, nil
}
