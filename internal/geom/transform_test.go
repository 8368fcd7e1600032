package geom

import (
	"math"
	"testing"
)

const tol = 1e-9

func approxEqual(t *testing.T, got, want, eps float64, name string) {
	t.Helper()
	if math.Abs(got-want) > eps {
		t.Errorf("%s = %v, want %v (±%v)", name, got, want, eps)
	}
}

func TestIdentity_IsRigid(t *testing.T) {
	if !Identity().IsRigid() {
		t.Error("identity should be a rigid transform")
	}
}

func TestTranslation_Apply(t *testing.T) {
	tr := Translation(1, 2, 3)
	x, y, z := tr.Apply(10, 20, 30)
	approxEqual(t, x, 11, tol, "x")
	approxEqual(t, y, 22, tol, "y")
	approxEqual(t, z, 33, tol, "z")
}

func TestRotationZ_QuarterTurn(t *testing.T) {
	r := RotationZ(math.Pi / 2)
	x, y, z := r.Apply(1, 0, 0)
	approxEqual(t, x, 0, tol, "x")
	approxEqual(t, y, 1, tol, "y")
	approxEqual(t, z, 0, tol, "z")
	if !r.IsRigid() {
		t.Error("rotation should be rigid")
	}
}

func TestMul_TranslateThenRotate(t *testing.T) {
	// a.Mul(b) applies b first. Rotate 90° about Z, then translate.
	m := Translation(5, 0, 0).Mul(RotationZ(math.Pi / 2))
	x, y, _ := m.Apply(1, 0, 0)
	approxEqual(t, x, 5, tol, "x")
	approxEqual(t, y, 1, tol, "y")
}

func TestInverse_RoundTrip(t *testing.T) {
	m := Translation(3, -1, 2).Mul(RotationZ(0.7))
	round := m.Mul(m.Inverse())
	if d := round.MaxDelta(Identity()); d > 1e-12 {
		t.Errorf("m * m⁻¹ differs from identity by %v", d)
	}
}

func TestEulerZYX_PureYaw(t *testing.T) {
	yaw, pitch, roll := RotationZ(0.3).EulerZYX()
	approxEqual(t, yaw, 0.3, tol, "yaw")
	approxEqual(t, pitch, 0, tol, "pitch")
	approxEqual(t, roll, 0, tol, "roll")
}

func TestEulerZYX_Composite(t *testing.T) {
	// Build Rz(yaw)·Ry(pitch)·Rx(roll) from quaternions and recover the
	// angles.
	wantYaw, wantPitch, wantRoll := 0.4, -0.2, 0.1
	qz := Quaternion{Z: math.Sin(wantYaw / 2), W: math.Cos(wantYaw / 2)}
	qy := Quaternion{Y: math.Sin(wantPitch / 2), W: math.Cos(wantPitch / 2)}
	qx := Quaternion{X: math.Sin(wantRoll / 2), W: math.Cos(wantRoll / 2)}
	m := qz.Transform(0, 0, 0).Mul(qy.Transform(0, 0, 0)).Mul(qx.Transform(0, 0, 0))

	yaw, pitch, roll := m.EulerZYX()
	approxEqual(t, yaw, wantYaw, 1e-9, "yaw")
	approxEqual(t, pitch, wantPitch, 1e-9, "pitch")
	approxEqual(t, roll, wantRoll, 1e-9, "roll")
}

func TestIsRigid_RejectsScale(t *testing.T) {
	m := Identity()
	m[0] = 2 // scaled X axis
	if m.IsRigid() {
		t.Error("scaled matrix should not be rigid")
	}
}

func TestQuaternion_TransformRoundTrip(t *testing.T) {
	q := Quaternion{X: 0.1, Y: -0.2, Z: 0.3, W: 0.9}.Normalized()
	m := q.Transform(1, 2, 3)
	if !m.IsRigid() {
		t.Fatal("quaternion transform should be rigid")
	}
	back := m.RotationQuaternion()
	// q and -q encode the same rotation; align signs before comparing.
	if back.W*q.W+back.X*q.X+back.Y*q.Y+back.Z*q.Z < 0 {
		back = Quaternion{-back.X, -back.Y, -back.Z, -back.W}
	}
	approxEqual(t, back.X, q.X, 1e-9, "qx")
	approxEqual(t, back.Y, q.Y, 1e-9, "qy")
	approxEqual(t, back.Z, q.Z, 1e-9, "qz")
	approxEqual(t, back.W, q.W, 1e-9, "qw")
}

func TestQuaternion_ZeroNormalizesToIdentity(t *testing.T) {
	m := Quaternion{}.Transform(0, 0, 0)
	if d := m.MaxDelta(Identity()); d > tol {
		t.Errorf("zero quaternion should give identity, delta %v", d)
	}
}
