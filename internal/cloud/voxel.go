package cloud

import (
	"math"
	"sort"
)

// Downsample performs voxel-grid downsampling: each cubic voxel of side
// leafSize (meters) is reduced to the single point closest to the
// voxel's centroid, preserving that point's intensity. A leafSize <= 0
// returns the input unchanged.
func Downsample(c Cloud, leafSize float64) Cloud {
	if len(c) == 0 {
		return nil
	}
	if leafSize <= 0 {
		return c
	}

	type voxelKey struct{ x, y, z int64 }
	type voxelAccum struct {
		sumX, sumY, sumZ float64
		indices          []int
	}

	voxels := make(map[voxelKey]*voxelAccum)
	for i, p := range c {
		k := voxelKey{
			x: int64(math.Floor(p.X / leafSize)),
			y: int64(math.Floor(p.Y / leafSize)),
			z: int64(math.Floor(p.Z / leafSize)),
		}
		v := voxels[k]
		if v == nil {
			v = &voxelAccum{}
			voxels[k] = v
		}
		v.sumX += p.X
		v.sumY += p.Y
		v.sumZ += p.Z
		v.indices = append(v.indices, i)
	}

	// Emit voxels in key order so the output is deterministic across
	// runs (map iteration order is not).
	keys := make([]voxelKey, 0, len(voxels))
	for k := range voxels {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.x != b.x {
			return a.x < b.x
		}
		if a.y != b.y {
			return a.y < b.y
		}
		return a.z < b.z
	})

	out := make(Cloud, 0, len(voxels))
	for _, k := range keys {
		v := voxels[k]
		n := float64(len(v.indices))
		cx, cy, cz := v.sumX/n, v.sumY/n, v.sumZ/n
		best := v.indices[0]
		bestDist := math.MaxFloat64
		for _, idx := range v.indices {
			p := c[idx]
			dx, dy, dz := p.X-cx, p.Y-cy, p.Z-cz
			d := dx*dx + dy*dy + dz*dz
			if d < bestDist {
				bestDist = d
				best = idx
			}
		}
		out = append(out, c[best])
	}
	return out
}
