package register

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mapalign/internal/cloud"
	"github.com/banshee-data/mapalign/internal/geom"
)

// testGrid builds a deterministic, mildly non-planar point grid spanning
// ±extent meters at the given spacing.
func testGrid(extent, spacing float64) cloud.Cloud {
	var c cloud.Cloud
	for x := -extent; x <= extent; x += spacing {
		for y := -extent; y <= extent; y += spacing {
			z := 0.2 * math.Sin(x) * math.Cos(y)
			c = append(c, cloud.Point{X: x, Y: y, Z: z})
		}
	}
	return c
}

func testParams() Params {
	return Params{
		MaxCorrespondenceDistance: 2.0,
		MaxIterations:             50,
		TransformationEpsilon:     1e-8,
		EuclideanFitnessEpsilon:   1e-8,
	}
}

func TestAlign_IdentityWhenAligned(t *testing.T) {
	grid := testGrid(8, 1)
	target := cloud.NewIndex(grid, 2.0)

	res, err := Align(grid, target, geom.Identity(), testParams())
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Less(t, res.Fitness, 1e-12)
	assert.Less(t, res.Transform.MaxDelta(geom.Identity()), 1e-6)
}

func TestAlign_RecoversKnownOffset(t *testing.T) {
	grid := testGrid(8, 1)
	want := geom.Translation(0.2, -0.1, 0.1).Mul(geom.RotationZ(0.01))
	target := cloud.NewIndex(grid.Transform(want), 2.0)

	res, err := Align(grid, target, geom.Identity(), testParams())
	require.NoError(t, err)
	assert.True(t, res.Converged)

	x, y, z := res.Transform.TranslationPart()
	assert.InDelta(t, 0.2, x, 1e-3)
	assert.InDelta(t, -0.1, y, 1e-3)
	assert.InDelta(t, 0.1, z, 1e-3)
	yaw, _, _ := res.Transform.EulerZYX()
	assert.InDelta(t, 0.01, yaw, 1e-3)
	assert.Less(t, res.Fitness, 1e-6)
}

func TestAlign_WarmStartFixedPoint(t *testing.T) {
	// Re-aligning with the previous result as seed must reproduce it.
	grid := testGrid(8, 1)
	offset := geom.Translation(0.2, 0.1, 0).Mul(geom.RotationZ(0.02))
	target := cloud.NewIndex(grid.Transform(offset), 2.0)

	first, err := Align(grid, target, geom.Identity(), testParams())
	require.NoError(t, err)
	require.True(t, first.Converged)

	second, err := Align(grid, target, first.Transform, testParams())
	require.NoError(t, err)
	assert.True(t, second.Converged)
	assert.Less(t, second.Transform.MaxDelta(first.Transform), 1e-6)
}

func TestAlign_IterationBudgetSoftFailure(t *testing.T) {
	grid := testGrid(4, 1)
	target := cloud.NewIndex(grid.Transform(geom.Translation(0.4, 0, 0)), 2.0)

	p := testParams()
	p.MaxIterations = 1
	p.TransformationEpsilon = 0
	p.EuclideanFitnessEpsilon = 0

	res, err := Align(grid, target, geom.Identity(), p)
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.True(t, res.Transform.IsRigid())
}

func TestAlign_BestEffortFitnessMatchesTransform(t *testing.T) {
	// On the iteration-cap path the reported fitness must describe the
	// returned transform, not the transform one delta earlier.
	grid := testGrid(4, 1)
	target := cloud.NewIndex(grid.Transform(geom.Translation(0.4, 0, 0)), 2.0)

	p := testParams()
	p.MaxIterations = 1
	p.TransformationEpsilon = 0
	p.EuclideanFitnessEpsilon = 0

	res, err := Align(grid, target, geom.Identity(), p)
	require.NoError(t, err)
	require.False(t, res.Converged)

	var sumSq float64
	pairs := 0
	for _, sp := range grid.Transform(res.Transform) {
		_, dist, ok := target.Nearest(sp.X, sp.Y, sp.Z, p.MaxCorrespondenceDistance)
		if !ok {
			continue
		}
		sumSq += dist * dist
		pairs++
	}
	require.GreaterOrEqual(t, pairs, MinCorrespondences)
	assert.InDelta(t, sumSq/float64(pairs), res.Fitness, 1e-12)
}

func TestAlign_ResultIsRigid(t *testing.T) {
	grid := testGrid(6, 1)
	target := cloud.NewIndex(grid.Transform(geom.RotationZ(0.03)), 2.0)

	res, err := Align(grid, target, geom.Identity(), testParams())
	require.NoError(t, err)
	assert.True(t, res.Transform.IsRigid())
}

func TestAlign_EmptySource(t *testing.T) {
	target := cloud.NewIndex(testGrid(4, 1), 2.0)
	_, err := Align(nil, target, geom.Identity(), testParams())
	assert.Error(t, err)
}

func TestAlign_EmptyTarget(t *testing.T) {
	_, err := Align(testGrid(4, 1), cloud.NewIndex(nil, 2.0), geom.Identity(), testParams())
	assert.Error(t, err)
}

func TestAlign_NoOverlap(t *testing.T) {
	grid := testGrid(4, 1)
	far := cloud.NewIndex(grid.Transform(geom.Translation(100, 100, 0)), 2.0)
	_, err := Align(grid, far, geom.Identity(), testParams())
	assert.Error(t, err, "disjoint clouds should fail with too few correspondences")
}

func TestParams_Validate(t *testing.T) {
	p := testParams()
	assert.NoError(t, p.Validate())

	bad := p
	bad.MaxCorrespondenceDistance = 0
	assert.Error(t, bad.Validate())

	bad = p
	bad.MaxIterations = 0
	assert.Error(t, bad.Validate())
}
