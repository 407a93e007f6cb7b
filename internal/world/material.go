package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Material is a voxel material ID. Air (0) is empty; every other value is solid.
type Material uint8

const (
	Air Material = iota
	Stone
	Dirt
	Grass
	Wood
	Leaves
	Plank
	Roof

	materialCount
)

// MaterialDefinition describes how a material is drawn.
type MaterialDefinition struct {
	ID    Material
	Name  string
	Color mgl32.Vec3 // linear RGB in [0,1]
}

func rgb(r, g, b uint8) mgl32.Vec3 {
	return mgl32.Vec3{float32(r) / 255, float32(g) / 255, float32(b) / 255}
}

var materials = [materialCount]MaterialDefinition{
	Air:    {ID: Air, Name: "air"},
	Stone:  {ID: Stone, Name: "stone", Color: rgb(110, 110, 110)},
	Dirt:   {ID: Dirt, Name: "dirt", Color: rgb(120, 90, 50)},
	Grass:  {ID: Grass, Name: "grass", Color: rgb(80, 140, 60)},
	Wood:   {ID: Wood, Name: "wood", Color: rgb(90, 60, 30)},
	Leaves: {ID: Leaves, Name: "leaves", Color: rgb(40, 120, 40)},
	Plank:  {ID: Plank, Name: "plank", Color: rgb(160, 130, 90)},
	Roof:   {ID: Roof, Name: "roof", Color: rgb(140, 50, 50)},
}

// Solid reports whether the material occupies its voxel.
func (m Material) Solid() bool { return m != Air }

// Valid reports whether m is a known material.
func (m Material) Valid() bool { return m < materialCount }

func (m Material) String() string {
	if m.Valid() {
		return materials[m].Name
	}
	return fmt.Sprintf("material(%d)", uint8(m))
}

// Definition returns the table entry for m. Unknown IDs yield an entry with
// a magenta color so they stand out on screen.
func Definition(m Material) MaterialDefinition {
	if m.Valid() {
		return materials[m]
	}
	return MaterialDefinition{ID: m, Name: m.String(), Color: mgl32.Vec3{1, 0, 1}}
}

// Palette returns the material table indexed by material ID, as bound by the
// renderer.
func Palette() []mgl32.Vec3 {
	out := make([]mgl32.Vec3, materialCount)
	for i, d := range materials {
		out[i] = d.Color
	}
	return out
}

// MaterialCount is the size of the material table.
func MaterialCount() int { return int(materialCount) }
