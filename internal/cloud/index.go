package cloud

import "math"

// Index is a uniform hash-grid spatial index over a cloud, used for
// nearest-neighbour queries during registration. Cell size should be on
// the order of the query radius: a query then touches at most the 27
// cells surrounding the query point's cell.
type Index struct {
	points   Cloud
	cellSize float64
	grid     map[cellKey][]int
}

type cellKey struct{ x, y, z int64 }

// NewIndex builds an index over points with the given cell size.
func NewIndex(points Cloud, cellSize float64) *Index {
	idx := &Index{
		points:   points,
		cellSize: cellSize,
		grid:     make(map[cellKey][]int, len(points)/4+1),
	}
	for i, p := range points {
		k := idx.keyFor(p.X, p.Y, p.Z)
		idx.grid[k] = append(idx.grid[k], i)
	}
	return idx
}

// Size returns the number of indexed points.
func (idx *Index) Size() int { return len(idx.points) }

// Points returns the indexed cloud.
func (idx *Index) Points() Cloud { return idx.points }

func (idx *Index) keyFor(x, y, z float64) cellKey {
	return cellKey{
		x: int64(math.Floor(x / idx.cellSize)),
		y: int64(math.Floor(y / idx.cellSize)),
		z: int64(math.Floor(z / idx.cellSize)),
	}
}

// Nearest returns the indexed point closest to (x, y, z) within
// maxDist, and whether one was found. Only cells overlapping the search
// sphere are visited.
func (idx *Index) Nearest(x, y, z, maxDist float64) (Point, float64, bool) {
	if maxDist <= 0 {
		return Point{}, 0, false
	}

	reach := int64(math.Ceil(maxDist / idx.cellSize))
	center := idx.keyFor(x, y, z)
	maxDist2 := maxDist * maxDist

	bestDist2 := math.MaxFloat64
	bestIdx := -1
	for dx := -reach; dx <= reach; dx++ {
		for dy := -reach; dy <= reach; dy++ {
			for dz := -reach; dz <= reach; dz++ {
				k := cellKey{center.x + dx, center.y + dy, center.z + dz}
				for _, i := range idx.grid[k] {
					p := idx.points[i]
					ddx, ddy, ddz := p.X-x, p.Y-y, p.Z-z
					d2 := ddx*ddx + ddy*ddy + ddz*ddz
					if d2 <= maxDist2 && d2 < bestDist2 {
						bestDist2 = d2
						bestIdx = i
					}
				}
			}
		}
	}
	if bestIdx < 0 {
		return Point{}, 0, false
	}
	return idx.points[bestIdx], math.Sqrt(bestDist2), true
}
