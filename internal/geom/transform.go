// Package geom provides rigid 3-D transforms for frame bookkeeping.
//
// A Transform is a 4x4 homogeneous matrix stored row-major
// (m00..m03, m10..m13, m20..m23, m30..m33), the same layout used for
// sensor poses elsewhere in the codebase.
package geom

import (
	"fmt"
	"math"
)

// RigidTolerance is the tolerance used when checking that a matrix is a
// proper rigid transform (orthonormal rotation, unit determinant).
const RigidTolerance = 0.01

// Transform is a rigid transform (rotation + translation) as a 4x4
// row-major homogeneous matrix.
type Transform [16]float64

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translation returns a pure translation transform.
func Translation(x, y, z float64) Transform {
	t := Identity()
	t[3] = x
	t[7] = y
	t[11] = z
	return t
}

// RotationZ returns a rotation about the vertical (Z) axis by yaw radians.
func RotationZ(yaw float64) Transform {
	c, s := math.Cos(yaw), math.Sin(yaw)
	return Transform{
		c, -s, 0, 0,
		s, c, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Mul returns the composition a∘b: the transform that applies b first,
// then a.
func (a Transform) Mul(b Transform) Transform {
	var out Transform
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += a[row*4+k] * b[k*4+col]
			}
			out[row*4+col] = sum
		}
	}
	return out
}

// Apply transforms the point (x, y, z).
func (a Transform) Apply(x, y, z float64) (wx, wy, wz float64) {
	wx = a[0]*x + a[1]*y + a[2]*z + a[3]
	wy = a[4]*x + a[5]*y + a[6]*z + a[7]
	wz = a[8]*x + a[9]*y + a[10]*z + a[11]
	return
}

// TranslationPart returns the translation column of the transform.
func (a Transform) TranslationPart() (x, y, z float64) {
	return a[3], a[7], a[11]
}

// Inverse returns the inverse of a rigid transform, computed as
// [Rᵀ | -Rᵀt]. Only valid when the rotation block is orthonormal.
func (a Transform) Inverse() Transform {
	inv := Identity()
	// Transpose the rotation block.
	inv[0], inv[1], inv[2] = a[0], a[4], a[8]
	inv[4], inv[5], inv[6] = a[1], a[5], a[9]
	inv[8], inv[9], inv[10] = a[2], a[6], a[10]
	// -Rᵀ t
	tx, ty, tz := a[3], a[7], a[11]
	inv[3] = -(inv[0]*tx + inv[1]*ty + inv[2]*tz)
	inv[7] = -(inv[4]*tx + inv[5]*ty + inv[6]*tz)
	inv[11] = -(inv[8]*tx + inv[9]*ty + inv[10]*tz)
	return inv
}

// IsRigid reports whether the matrix is a proper rigid transform: the
// rotation block has determinant ≈ 1 with orthonormal rows, and the
// bottom row is [0 0 0 1].
func (a Transform) IsRigid() bool {
	r00, r01, r02 := a[0], a[1], a[2]
	r10, r11, r12 := a[4], a[5], a[6]
	r20, r21, r22 := a[8], a[9], a[10]

	det := r00*(r11*r22-r12*r21) - r01*(r10*r22-r12*r20) + r02*(r10*r21-r11*r20)
	if math.Abs(det-1.0) > RigidTolerance {
		return false
	}

	rows := [3][3]float64{
		{r00, r01, r02},
		{r10, r11, r12},
		{r20, r21, r22},
	}
	for i := 0; i < 3; i++ {
		norm := rows[i][0]*rows[i][0] + rows[i][1]*rows[i][1] + rows[i][2]*rows[i][2]
		if math.Abs(norm-1.0) > RigidTolerance {
			return false
		}
		for j := i + 1; j < 3; j++ {
			dot := rows[i][0]*rows[j][0] + rows[i][1]*rows[j][1] + rows[i][2]*rows[j][2]
			if math.Abs(dot) > RigidTolerance {
				return false
			}
		}
	}

	return a[12] == 0 && a[13] == 0 && a[14] == 0 && a[15] == 1
}

// EulerZYX decomposes the rotation block into intrinsic yaw (Z), pitch
// (Y), roll (X) angles in radians, matching R = Rz(yaw)·Ry(pitch)·Rx(roll).
func (a Transform) EulerZYX() (yaw, pitch, roll float64) {
	r20 := a[8]
	// Clamp against accumulated floating error before asin.
	if r20 > 1 {
		r20 = 1
	} else if r20 < -1 {
		r20 = -1
	}
	pitch = math.Asin(-r20)
	if math.Abs(r20) > 1-1e-9 {
		// Gimbal lock: yaw and roll are degenerate; fold into yaw.
		yaw = math.Atan2(-a[1], a[5])
		roll = 0
		return
	}
	yaw = math.Atan2(a[4], a[0])
	roll = math.Atan2(a[9], a[10])
	return
}

// MaxDelta returns the largest absolute element-wise difference between
// two transforms, used for convergence and fixed-point checks.
func (a Transform) MaxDelta(b Transform) float64 {
	var max float64
	for i := range a {
		d := math.Abs(a[i] - b[i])
		if d > max {
			max = d
		}
	}
	return max
}

func (a Transform) String() string {
	x, y, z := a.TranslationPart()
	yaw, pitch, roll := a.EulerZYX()
	return fmt.Sprintf("t=(%.3f, %.3f, %.3f) ypr=(%.4f, %.4f, %.4f)", x, y, z, yaw, pitch, roll)
}
