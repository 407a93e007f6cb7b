// Package glrender draws resident chunk meshes with OpenGL. It must run on
// the thread that owns the GL context.
package glrender

import (
	_ "embed"
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/valydumitru01/Burst/internal/gpu"
	"github.com/valydumitru01/Burst/internal/meshing"
	"github.com/valydumitru01/Burst/internal/render"
	"github.com/valydumitru01/Burst/internal/world"
)

var (
	//go:embed shaders/chunk.vert
	chunkVert string
	//go:embed shaders/chunk.frag
	chunkFrag string
)

// BufferNames resolves device buffer ids to GL buffer objects.
type BufferNames interface {
	Name(id gpu.BufferID) uint32
}

// Renderer draws chunk meshes colored by the material palette.
type Renderer struct {
	shader  *Shader
	vao     uint32
	names   BufferNames
	edge    int
	visible []gpu.DrawCommand

	ClearColor  mgl32.Vec3
	LightDir    mgl32.Vec3
	FogDistance float32
}

func New(names BufferNames, edge int, fogDistance float32) (*Renderer, error) {
	shader, err := NewShader(chunkVert, chunkFrag)
	if err != nil {
		return nil, fmt.Errorf("chunk shader: %w", err)
	}
	r := &Renderer{
		shader:      shader,
		names:       names,
		edge:        edge,
		ClearColor:  mgl32.Vec3{0.62, 0.76, 0.92},
		LightDir:    mgl32.Vec3{-0.4, -1, -0.3}.Normalize(),
		FogDistance: fogDistance,
	}
	gl.GenVertexArrays(1, &r.vao)

	shader.Use()
	shader.SetVec3Array("uPalette", world.Palette())

	gl.Enable(gl.DEPTH_TEST)
	gl.Enable(gl.CULL_FACE)
	gl.CullFace(gl.BACK)
	gl.FrontFace(gl.CCW)
	return r, nil
}

// bindMesh points the vertex attributes at one chunk's buffers.
func (r *Renderer) bindMesh(vbo, ibo uint32) {
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	stride := int32(meshing.VertexSize)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, stride, gl.PtrOffset(meshing.PositionOffset))
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointer(1, 3, gl.FLOAT, false, stride, gl.PtrOffset(meshing.NormalOffset))
	gl.EnableVertexAttribArray(2)
	gl.VertexAttribIPointer(2, 1, gl.UNSIGNED_INT, stride, gl.PtrOffset(meshing.MaterialOffset))
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, ibo)
}

func (r *Renderer) Draw(frame uint64, cam *render.Camera, cmds []gpu.DrawCommand) (render.Stats, error) {
	gl.ClearColor(r.ClearColor.X(), r.ClearColor.Y(), r.ClearColor.Z(), 1)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	f := render.NewFrustum(cam.ViewProjection())
	r.visible = f.Cull(r.visible[:0], cmds, r.edge)
	st := render.Stats{Submitted: len(cmds), Drawn: len(r.visible), Culled: len(cmds) - len(r.visible)}

	r.shader.Use()
	r.shader.SetMatrix4("uView", cam.ViewMatrix())
	r.shader.SetMatrix4("uProj", cam.ProjectionMatrix())
	r.shader.SetVec3("uLightDir", r.LightDir)
	r.shader.SetVec3("uFogColor", r.ClearColor)
	r.shader.SetFloat("uFogDistance", r.FogDistance)

	gl.BindVertexArray(r.vao)
	for _, dc := range r.visible {
		vbo, ibo := r.names.Name(dc.VertexBuffer), r.names.Name(dc.IndexBuffer)
		if vbo == 0 || ibo == 0 {
			continue
		}
		r.bindMesh(vbo, ibo)
		r.shader.SetMatrix4("uModel", dc.Model)
		gl.DrawElements(gl.TRIANGLES, int32(dc.IndexCount), gl.UNSIGNED_INT, nil)
		st.Triangles += dc.IndexCount / 3
	}
	gl.BindVertexArray(0)

	if e := gl.GetError(); e != gl.NO_ERROR {
		return st, fmt.Errorf("gl draw frame %d: error 0x%x", frame, e)
	}
	return st, nil
}

func (r *Renderer) Delete() {
	gl.DeleteVertexArrays(1, &r.vao)
	r.shader.Delete()
}

var _ render.Renderer = (*Renderer)(nil)
