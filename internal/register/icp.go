// Package register implements point-to-point ICP registration: given a
// source cloud, an indexed target cloud and an initial guess, it
// iteratively refines a rigid transform that aligns source onto target
// and reports a scalar fitness score (mean squared correspondence
// distance, lower is better).
package register

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/mapalign/internal/cloud"
	"github.com/banshee-data/mapalign/internal/geom"
)

// MinCorrespondences is the minimum pairing count needed to estimate a
// rigid transform.
const MinCorrespondences = 3

// Params bound a single registration run.
type Params struct {
	// MaxCorrespondenceDistance is the maximum distance (meters) at
	// which a source point pairs with its nearest target point.
	MaxCorrespondenceDistance float64
	// MaxIterations caps the refinement loop.
	MaxIterations int
	// TransformationEpsilon: the loop stops when an iteration changes
	// the transform by less than this (max element-wise delta).
	TransformationEpsilon float64
	// EuclideanFitnessEpsilon: the loop stops when the fitness score
	// changes by less than this between iterations.
	EuclideanFitnessEpsilon float64
}

// Validate reports whether the parameters describe a runnable
// registration.
func (p Params) Validate() error {
	if p.MaxCorrespondenceDistance <= 0 {
		return fmt.Errorf("max correspondence distance must be positive, got %v", p.MaxCorrespondenceDistance)
	}
	if p.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", p.MaxIterations)
	}
	return nil
}

// Result is the outcome of a registration run. A run that exhausts its
// iteration budget still returns its best-effort transform with
// Converged false; callers decide whether that is acceptable.
type Result struct {
	Transform  geom.Transform
	Fitness    float64
	Converged  bool
	Iterations int
}

// Align registers source onto the indexed target starting from guess.
// It is deterministic given identical inputs. An error is returned only
// for degenerate inputs (empty clouds, invalid params, too few
// correspondences to constrain a rigid transform); running out of
// iterations is not an error.
func Align(source cloud.Cloud, target *cloud.Index, guess geom.Transform, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if len(source) == 0 {
		return Result{}, fmt.Errorf("empty source cloud")
	}
	if target == nil || target.Size() == 0 {
		return Result{}, fmt.Errorf("empty target cloud")
	}

	current := guess
	prevFitness := math.MaxFloat64

	srcPaired := make([]cloud.Point, 0, len(source))
	tgtPaired := make([]cloud.Point, 0, len(source))

	for iter := 1; iter <= p.MaxIterations; iter++ {
		moved := source.Transform(current)

		srcPaired = srcPaired[:0]
		tgtPaired = tgtPaired[:0]
		var sumSq float64
		for _, sp := range moved {
			tp, dist, ok := target.Nearest(sp.X, sp.Y, sp.Z, p.MaxCorrespondenceDistance)
			if !ok {
				continue
			}
			srcPaired = append(srcPaired, sp)
			tgtPaired = append(tgtPaired, tp)
			sumSq += dist * dist
		}
		if len(srcPaired) < MinCorrespondences {
			return Result{}, fmt.Errorf("only %d correspondences within %.2fm, need at least %d",
				len(srcPaired), p.MaxCorrespondenceDistance, MinCorrespondences)
		}
		fitness := sumSq / float64(len(srcPaired))

		delta, err := bestFitTransform(srcPaired, tgtPaired)
		if err != nil {
			return Result{}, err
		}
		current = delta.Mul(current)

		if delta.MaxDelta(geom.Identity()) < p.TransformationEpsilon ||
			math.Abs(prevFitness-fitness) < p.EuclideanFitnessEpsilon {
			return Result{Transform: current, Fitness: fitness, Converged: true, Iterations: iter}, nil
		}
		prevFitness = fitness
	}

	// The loop exits with a transform one delta newer than the last
	// measured score; rescore against the final transform so Fitness
	// always describes the returned Transform.
	fitness, pairs := meanSquaredError(source, target, current, p.MaxCorrespondenceDistance)
	if pairs < MinCorrespondences {
		fitness = prevFitness
	}
	return Result{Transform: current, Fitness: fitness, Converged: false, Iterations: p.MaxIterations}, nil
}

// meanSquaredError scores a transform: the mean squared distance from
// each transformed source point to its nearest target neighbour within
// maxDist, with the number of pairs found.
func meanSquaredError(source cloud.Cloud, target *cloud.Index, t geom.Transform, maxDist float64) (float64, int) {
	moved := source.Transform(t)
	var sumSq float64
	pairs := 0
	for _, sp := range moved {
		_, dist, ok := target.Nearest(sp.X, sp.Y, sp.Z, maxDist)
		if !ok {
			continue
		}
		sumSq += dist * dist
		pairs++
	}
	if pairs == 0 {
		return 0, 0
	}
	return sumSq / float64(pairs), pairs
}

// bestFitTransform computes the rigid transform minimizing the summed
// squared distance between paired points (Kabsch / SVD closed form).
func bestFitTransform(src, tgt []cloud.Point) (geom.Transform, error) {
	n := float64(len(src))
	var scx, scy, scz, tcx, tcy, tcz float64
	for i := range src {
		scx += src[i].X
		scy += src[i].Y
		scz += src[i].Z
		tcx += tgt[i].X
		tcy += tgt[i].Y
		tcz += tgt[i].Z
	}
	scx, scy, scz = scx/n, scy/n, scz/n
	tcx, tcy, tcz = tcx/n, tcy/n, tcz/n

	// Cross-covariance of centered pairs.
	h := mat.NewDense(3, 3, nil)
	for i := range src {
		sx, sy, sz := src[i].X-scx, src[i].Y-scy, src[i].Z-scz
		tx, ty, tz := tgt[i].X-tcx, tgt[i].Y-tcy, tgt[i].Z-tcz
		h.Set(0, 0, h.At(0, 0)+sx*tx)
		h.Set(0, 1, h.At(0, 1)+sx*ty)
		h.Set(0, 2, h.At(0, 2)+sx*tz)
		h.Set(1, 0, h.At(1, 0)+sy*tx)
		h.Set(1, 1, h.At(1, 1)+sy*ty)
		h.Set(1, 2, h.At(1, 2)+sy*tz)
		h.Set(2, 0, h.At(2, 0)+sz*tx)
		h.Set(2, 1, h.At(2, 1)+sz*ty)
		h.Set(2, 2, h.At(2, 2)+sz*tz)
	}

	var svd mat.SVD
	if !svd.Factorize(h, mat.SVDFull) {
		return geom.Identity(), fmt.Errorf("SVD of correspondence covariance failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&v, u.T())
	if mat.Det(&r) < 0 {
		// Reflection: flip the axis of least variance.
		flipped := mat.NewDense(3, 3, nil)
		flipped.Copy(&v)
		for row := 0; row < 3; row++ {
			flipped.Set(row, 2, -flipped.At(row, 2))
		}
		r.Mul(flipped, u.T())
	}

	out := geom.Identity()
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			out[row*4+col] = r.At(row, col)
		}
	}
	out[3] = tcx - (r.At(0, 0)*scx + r.At(0, 1)*scy + r.At(0, 2)*scz)
	out[7] = tcy - (r.At(1, 0)*scx + r.At(1, 1)*scy + r.At(1, 2)*scz)
	out[11] = tcz - (r.At(2, 0)*scx + r.At(2, 1)*scy + r.At(2, 2)*scz)
	return out, nil
}
