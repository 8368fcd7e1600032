package geom

import "math"

// Quaternion is a rotation quaternion in (x, y, z, w) component order,
// the order used by sensor extrinsic calibration files.
type Quaternion struct {
	X, Y, Z, W float64
}

// Norm returns the quaternion's Euclidean norm.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

// Normalized returns the unit quaternion with the same orientation.
// The zero quaternion normalizes to identity.
func (q Quaternion) Normalized() Quaternion {
	n := q.Norm()
	if n == 0 {
		return Quaternion{W: 1}
	}
	return Quaternion{q.X / n, q.Y / n, q.Z / n, q.W / n}
}

// Transform builds the rigid transform with rotation q and translation
// (tx, ty, tz). q is normalized first.
func (q Quaternion) Transform(tx, ty, tz float64) Transform {
	u := q.Normalized()
	x, y, z, w := u.X, u.Y, u.Z, u.W

	xx, yy, zz := x*x, y*y, z*z
	xy, xz, yz := x*y, x*z, y*z
	wx, wy, wz := w*x, w*y, w*z

	return Transform{
		1 - 2*(yy+zz), 2 * (xy - wz), 2 * (xz + wy), tx,
		2 * (xy + wz), 1 - 2*(xx+zz), 2 * (yz - wx), ty,
		2 * (xz - wy), 2 * (yz + wx), 1 - 2*(xx+yy), tz,
		0, 0, 0, 1,
	}
}

// RotationQuaternion extracts the rotation block of the transform as a
// unit quaternion (Shepperd's method: pick the largest diagonal pivot
// for numerical stability).
func (a Transform) RotationQuaternion() Quaternion {
	r00, r01, r02 := a[0], a[1], a[2]
	r10, r11, r12 := a[4], a[5], a[6]
	r20, r21, r22 := a[8], a[9], a[10]

	trace := r00 + r11 + r22
	var q Quaternion
	switch {
	case trace > 0:
		s := math.Sqrt(trace+1.0) * 2
		q.W = 0.25 * s
		q.X = (r21 - r12) / s
		q.Y = (r02 - r20) / s
		q.Z = (r10 - r01) / s
	case r00 > r11 && r00 > r22:
		s := math.Sqrt(1.0+r00-r11-r22) * 2
		q.W = (r21 - r12) / s
		q.X = 0.25 * s
		q.Y = (r01 + r10) / s
		q.Z = (r02 + r20) / s
	case r11 > r22:
		s := math.Sqrt(1.0+r11-r00-r22) * 2
		q.W = (r02 - r20) / s
		q.X = (r01 + r10) / s
		q.Y = 0.25 * s
		q.Z = (r12 + r21) / s
	default:
		s := math.Sqrt(1.0+r22-r00-r11) * 2
		q.W = (r10 - r01) / s
		q.X = (r02 + r20) / s
		q.Y = (r12 + r21) / s
		q.Z = 0.25 * s
	}
	return q
}
