// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ahrs

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Float is the set of floating point types the filters can run on.
type Float = constraints.Float

// normEpsilon is the magnitude below which a vector or quaternion is treated
// as zero and cannot be normalized.
const normEpsilon = 1e-12

// Vector3 is a 3-vector in sensor or earth frame.
type Vector3[T Float] struct {
	X, Y, Z T
}

// Vec3 is shorthand for building a Vector3.
func Vec3[T Float](x, y, z T) Vector3[T] {
	return Vector3[T]{X: x, Y: y, Z: z}
}

func (v Vector3[T]) Add(o Vector3[T]) Vector3[T] {
	return Vector3[T]{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vector3[T]) Scale(s T) Vector3[T] {
	return Vector3[T]{v.X * s, v.Y * s, v.Z * s}
}

func (v Vector3[T]) Dot(o Vector3[T]) T {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vector3[T]) Cross(o Vector3[T]) Vector3[T] {
	return Vector3[T]{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

func (v Vector3[T]) Norm() T {
	return T(scaledNorm(float64(v.X), float64(v.Y), float64(v.Z), 0))
}

// IsFinite reports whether no component is NaN or ±Inf.
func (v Vector3[T]) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// Normalize returns v scaled to unit length. ok is false when v is too
// short to normalize.
func (v Vector3[T]) Normalize() (u Vector3[T], ok bool) {
	n := v.Norm()
	if !(float64(n) > normEpsilon) || !isFinite(n) {
		return Vector3[T]{}, false
	}
	return v.Scale(1 / n), true
}

// Quaternion is stored as (W, X, Y, Z) with W the scalar part. Orientation
// quaternions rotate sensor-frame vectors into the earth frame.
type Quaternion[T Float] struct {
	W, X, Y, Z T
}

// Identity returns the quaternion (1, 0, 0, 0).
func Identity[T Float]() Quaternion[T] {
	return Quaternion[T]{W: 1}
}

// Pure returns the quaternion (0, v).
func Pure[T Float](v Vector3[T]) Quaternion[T] {
	return Quaternion[T]{X: v.X, Y: v.Y, Z: v.Z}
}

// FromAxisAngle builds the rotation of angle radians about axis. The axis
// does not need to be unit length; a zero axis yields the identity.
func FromAxisAngle[T Float](axis Vector3[T], angle T) Quaternion[T] {
	u, ok := axis.Normalize()
	if !ok {
		return Identity[T]()
	}
	half := float64(angle) / 2
	s := T(math.Sin(half))
	return Quaternion[T]{W: T(math.Cos(half)), X: u.X * s, Y: u.Y * s, Z: u.Z * s}
}

// Vector returns the imaginary part.
func (q Quaternion[T]) Vector() Vector3[T] {
	return Vector3[T]{q.X, q.Y, q.Z}
}

func (q Quaternion[T]) Add(o Quaternion[T]) Quaternion[T] {
	return Quaternion[T]{q.W + o.W, q.X + o.X, q.Y + o.Y, q.Z + o.Z}
}

func (q Quaternion[T]) Scale(s T) Quaternion[T] {
	return Quaternion[T]{q.W * s, q.X * s, q.Y * s, q.Z * s}
}

func (q Quaternion[T]) Dot(o Quaternion[T]) T {
	return q.W*o.W + q.X*o.X + q.Y*o.Y + q.Z*o.Z
}

func (q Quaternion[T]) Conjugate() Quaternion[T] {
	return Quaternion[T]{q.W, -q.X, -q.Y, -q.Z}
}

// Mul returns the Hamilton product q ⊗ o.
func (q Quaternion[T]) Mul(o Quaternion[T]) Quaternion[T] {
	return Quaternion[T]{
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
	}
}

func (q Quaternion[T]) Norm() T {
	return T(scaledNorm(float64(q.W), float64(q.X), float64(q.Y), float64(q.Z)))
}

func (q Quaternion[T]) IsFinite() bool {
	return isFinite(q.W) && isFinite(q.X) && isFinite(q.Y) && isFinite(q.Z)
}

// Normalize returns q divided by its norm. ok is false when the norm is
// zero, too small or not finite.
func (q Quaternion[T]) Normalize() (u Quaternion[T], ok bool) {
	n := q.Norm()
	if !(float64(n) > normEpsilon) || !isFinite(n) {
		return Quaternion[T]{}, false
	}
	return q.Scale(1 / n), true
}

// Rotate maps a sensor-frame vector into the earth frame: q ⊗ (0,v) ⊗ q*.
func (q Quaternion[T]) Rotate(v Vector3[T]) Vector3[T] {
	return q.Mul(Pure(v)).Mul(q.Conjugate()).Vector()
}

// RotateInverse maps an earth-frame vector into the sensor frame: q* ⊗ (0,v) ⊗ q.
func (q Quaternion[T]) RotateInverse(v Vector3[T]) Vector3[T] {
	return q.Conjugate().Mul(Pure(v)).Mul(q).Vector()
}

// EulerAngles returns roll, pitch and yaw in radians (ZYX convention).
// Pitch saturates at ±π/2 in gimbal lock.
func (q Quaternion[T]) EulerAngles() (roll, pitch, yaw T) {
	w, x, y, z := float64(q.W), float64(q.X), float64(q.Y), float64(q.Z)

	roll = T(math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y)))

	sinp := 2 * (w*y - z*x)
	if math.Abs(sinp) >= 1 {
		pitch = T(math.Copysign(math.Pi/2, sinp))
	} else {
		pitch = T(math.Asin(sinp))
	}

	yaw = T(math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z)))
	return roll, pitch, yaw
}

// Angle returns the smallest rotation angle in radians taking q to o. Both
// must be unit quaternions; q and -q describe the same rotation.
func (q Quaternion[T]) Angle(o Quaternion[T]) T {
	d := math.Abs(float64(q.Dot(o)))
	if d > 1 {
		d = 1
	}
	return T(2 * math.Acos(d))
}

func isFinite[T Float](v T) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// scaledNorm is the Euclidean norm with components divided by the largest
// magnitude first, so large finite inputs do not overflow when squared.
func scaledNorm(a, b, c, d float64) float64 {
	m := max(math.Abs(a), math.Abs(b), math.Abs(c), math.Abs(d))
	if m == 0 || math.IsInf(m, 0) || math.IsNaN(m) {
		return m
	}
	a, b, c, d = a/m, b/m, c/m, d/m
	return m * math.Sqrt(a*a+b*b+c*c+d*d)
}
