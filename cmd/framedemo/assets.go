package main

import (
	"context"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"

	"github.com/vkngwrapper/framepacer/scene"
)

type assets struct {
	shaders scene.Shaders
	mesh    scene.Mesh
	texture image.Image
}

// loadAssets reads the shaders, mesh and texture named by opts
// concurrently. Without a model the built-in quads are drawn, and without
// a texture they are drawn white.
func loadAssets(ctx context.Context, opts options) (*assets, error) {
	a := &assets{mesh: scene.Quads()}

	group, _ := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		a.shaders.Vertex, err = os.ReadFile(opts.vertexShader)
		return errors.Wrap(err, "read vertex shader")
	})
	group.Go(func() error {
		var err error
		a.shaders.Fragment, err = os.ReadFile(opts.fragmentShader)
		return errors.Wrap(err, "read fragment shader")
	})
	if opts.model != "" {
		group.Go(func() error {
			mesh, err := loadModel(opts.model, opts.material)
			if err != nil {
				return errors.Wrapf(err, "load model %s", opts.model)
			}
			a.mesh = mesh
			return nil
		})
	}
	if opts.texture != "" {
		group.Go(func() error {
			f, err := os.Open(opts.texture)
			if err != nil {
				return errors.Wrap(err, "open texture")
			}
			defer f.Close()
			a.texture, err = png.Decode(f)
			return errors.Wrapf(err, "decode texture %s", opts.texture)
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return a, nil
}

func loadModel(objPath, mtlPath string) (scene.Mesh, error) {
	meshFile, err := os.Open(objPath)
	if err != nil {
		return scene.Mesh{}, err
	}
	defer meshFile.Close()

	var matFile io.Reader
	if mtlPath != "" {
		f, err := os.Open(mtlPath)
		if err != nil {
			return scene.Mesh{}, err
		}
		defer f.Close()
		matFile = f
	}

	decoder, err := obj.DecodeReader(meshFile, matFile)
	if err != nil {
		return scene.Mesh{}, err
	}

	var mesh scene.Mesh
	uniqueVertices := make(map[int]uint32)
	addVertex := func(face obj.Face, faceIndex int) {
		vertInd := face.Vertices[faceIndex]
		index, vertexExists := uniqueVertices[vertInd]
		if !vertexExists {
			vert := scene.Vertex{
				Position: mgl32.Vec3{
					decoder.Vertices[vertInd*3],
					decoder.Vertices[vertInd*3+1],
					decoder.Vertices[vertInd*3+2],
				},
				Color: mgl32.Vec3{1, 1, 1},
			}
			if faceIndex < len(face.Uvs) {
				uvInd := face.Uvs[faceIndex]
				vert.TexCoord = mgl32.Vec2{
					decoder.Uvs[uvInd*2],
					1.0 - decoder.Uvs[uvInd*2+1],
				}
			}

			index = uint32(len(mesh.Vertices))
			mesh.Vertices = append(mesh.Vertices, vert)
			uniqueVertices[vertInd] = index
		}
		mesh.Indices = append(mesh.Indices, index)
	}

	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			// Faces are fans.
			for i := 2; i < len(face.Vertices); i++ {
				addVertex(face, 0)
				addVertex(face, i-1)
				addVertex(face, i)
			}
		}
	}
	if len(mesh.Indices) == 0 {
		return mesh, errors.New("model has no faces")
	}
	return mesh, nil
}
