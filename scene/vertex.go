package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/vkngwrapper/framepacer/driver"
)

type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
	TexCoord mgl32.Vec2
}

// VertexLayout describes Vertex to the pipeline: position at location 0,
// color at 1 and texture coordinate at 2.
var VertexLayout = driver.VertexLayout{
	Stride: 32,
	Attributes: []driver.VertexAttribute{
		{Location: 0, Format: driver.FormatR32G32B32Float, Offset: 0},
		{Location: 1, Format: driver.FormatR32G32B32Float, Offset: 12},
		{Location: 2, Format: driver.FormatR32G32Float, Offset: 24},
	},
}

// Uniforms is the per-frame uniform block bound at binding 0.
type Uniforms struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// Quads is two textured quads stacked along Z, the mesh drawn when no
// model is loaded.
func Quads() Mesh {
	return Mesh{
		Vertices: []Vertex{
			{Position: mgl32.Vec3{-0.5, -0.5, 0}, Color: mgl32.Vec3{1, 0, 0}, TexCoord: mgl32.Vec2{1, 0}},
			{Position: mgl32.Vec3{0.5, -0.5, 0}, Color: mgl32.Vec3{0, 1, 0}, TexCoord: mgl32.Vec2{0, 0}},
			{Position: mgl32.Vec3{0.5, 0.5, 0}, Color: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{0, 1}},
			{Position: mgl32.Vec3{-0.5, 0.5, 0}, Color: mgl32.Vec3{1, 1, 1}, TexCoord: mgl32.Vec2{1, 1}},

			{Position: mgl32.Vec3{-0.5, -0.5, -0.5}, Color: mgl32.Vec3{1, 0, 0}, TexCoord: mgl32.Vec2{1, 0}},
			{Position: mgl32.Vec3{0.5, -0.5, -0.5}, Color: mgl32.Vec3{0, 1, 0}, TexCoord: mgl32.Vec2{0, 0}},
			{Position: mgl32.Vec3{0.5, 0.5, -0.5}, Color: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{0, 1}},
			{Position: mgl32.Vec3{-0.5, 0.5, -0.5}, Color: mgl32.Vec3{1, 1, 1}, TexCoord: mgl32.Vec2{1, 1}},
		},
		Indices: []uint32{
			0, 1, 2, 2, 3, 0,
			4, 5, 6, 6, 7, 4,
		},
	}
}
