// Package cloud provides the point-cloud container used by the
// localization pipeline, plus voxel downsampling, a hash-grid
// nearest-neighbour index, and ASCII PCD file I/O.
package cloud

import (
	"github.com/banshee-data/mapalign/internal/geom"
)

// Point is a single lidar return with position (meters) and intensity.
type Point struct {
	X, Y, Z   float64
	Intensity uint8
}

// Cloud is an ordered set of points in one reference frame.
type Cloud []Point

// Transform returns a new cloud with every point moved by t.
func (c Cloud) Transform(t geom.Transform) Cloud {
	if len(c) == 0 {
		return nil
	}
	out := make(Cloud, len(c))
	for i, p := range c {
		x, y, z := t.Apply(p.X, p.Y, p.Z)
		out[i] = Point{X: x, Y: y, Z: z, Intensity: p.Intensity}
	}
	return out
}

// Centroid returns the mean position of the cloud.
func (c Cloud) Centroid() (x, y, z float64) {
	if len(c) == 0 {
		return 0, 0, 0
	}
	for _, p := range c {
		x += p.X
		y += p.Y
		z += p.Z
	}
	n := float64(len(c))
	return x / n, y / n, z / n
}
