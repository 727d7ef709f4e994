// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ahrs

import (
	"errors"
	"fmt"
)

// DefaultBeta is the Madgwick gain used by DefaultMadgwick.
const DefaultBeta = 0.1

// MagReference selects how the earth-frame magnetic reference b = (bx, 0, bz)
// is obtained for MARG updates.
type MagReference int

const (
	// MagReferenceTracking derives b on every update from the current
	// magnetometer reading rotated through the current estimate.
	MagReferenceTracking MagReference = iota
	// MagReferenceLatched derives b from the first successful MARG update
	// and keeps it until Reset.
	MagReferenceLatched
	// MagReferenceFixed uses a configured b.
	MagReferenceFixed
)

func (r MagReference) String() string {
	switch r {
	case MagReferenceTracking:
		return "tracking"
	case MagReferenceLatched:
		return "latched"
	case MagReferenceFixed:
		return "fixed"
	default:
		return fmt.Sprintf("MagReference(%d)", int(r))
	}
}

// Option configures a Madgwick filter at construction.
type Option[T Float] func(*Madgwick[T]) error

// WithLatchedMagReference makes the filter learn the magnetic reference once
// instead of re-deriving it every sample.
func WithLatchedMagReference[T Float]() Option[T] {
	return func(f *Madgwick[T]) error {
		f.magRef = MagReferenceLatched
		return nil
	}
}

// WithMagReference fixes the earth-frame field direction to (bx, 0, bz).
// Only the direction matters; the pair is normalized.
func WithMagReference[T Float](bx, bz T) Option[T] {
	return func(f *Madgwick[T]) error {
		if !isFinite(bx) || !isFinite(bz) {
			return fmt.Errorf("%w: magnetic reference is not finite", ErrInvalidInput)
		}
		b, ok := Vec3(bx, 0, bz).Normalize()
		if !ok {
			return fmt.Errorf("%w: magnetic reference is zero", ErrInvalidInput)
		}
		f.magRef = MagReferenceFixed
		f.bx, f.bz = b.X, b.Z
		f.haveRef = true
		return nil
	}
}

// Madgwick is the gradient-descent orientation filter: gyro integration
// corrected by one normalized gradient step toward gravity (and the
// magnetic field) per sample.
type Madgwick[T Float] struct {
	samplePeriod T
	beta         T
	quat         Quaternion[T]

	magRef  MagReference
	bx, bz  T
	haveRef bool
}

// NewMadgwick validates the configuration and returns a filter seeded with
// initial. A finite, non-zero initial quaternion is normalized.
func NewMadgwick[T Float](samplePeriod, beta T, initial Quaternion[T], opts ...Option[T]) (*Madgwick[T], error) {
	if err := checkSamplePeriod(samplePeriod); err != nil {
		return nil, err
	}
	if err := checkGain("beta", beta); err != nil {
		return nil, err
	}
	q, err := initialOrientation(initial)
	if err != nil {
		return nil, err
	}

	f := &Madgwick[T]{samplePeriod: samplePeriod, beta: beta, quat: q}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// DefaultMadgwick returns a filter with a 1/256 s period, beta 0.1 and the
// identity orientation.
func DefaultMadgwick[T Float]() *Madgwick[T] {
	return &Madgwick[T]{
		samplePeriod: DefaultSamplePeriod,
		beta:         DefaultBeta,
		quat:         Identity[T](),
	}
}

// Quaternion returns the committed orientation.
func (f *Madgwick[T]) Quaternion() Quaternion[T] {
	return f.quat
}

// MagReference reports the reference mode and, once known, the (bx, bz)
// pair in use.
func (f *Madgwick[T]) MagReference() (mode MagReference, bx, bz T, ok bool) {
	return f.magRef, f.bx, f.bz, f.haveRef
}

// Reset re-seeds the orientation. A latched magnetic reference is forgotten;
// a fixed one is kept.
func (f *Madgwick[T]) Reset(q Quaternion[T]) error {
	u, err := initialOrientation(q)
	if err != nil {
		return err
	}
	f.quat = u
	if f.magRef == MagReferenceLatched {
		f.bx, f.bz, f.haveRef = 0, 0, false
	}
	return nil
}

// Update runs one MARG step. On error the filter state is unchanged.
func (f *Madgwick[T]) Update(gyro, accel, mag Vector3[T]) (Quaternion[T], error) {
	a, m, err := sensorInputs(gyro, accel, mag, true)
	if err != nil {
		return f.quat, err
	}

	q := f.quat
	bx, bz := f.reference(q, m)
	next, err := f.step(q, gyro, margGradient(q, a, m, bx, bz))
	if err != nil {
		return f.quat, err
	}

	f.quat = next
	if f.magRef == MagReferenceLatched && !f.haveRef {
		f.bx, f.bz, f.haveRef = bx, bz, true
	}
	return next, nil
}

// UpdateIMU runs one step from gyro and accel only. On error the filter
// state is unchanged.
func (f *Madgwick[T]) UpdateIMU(gyro, accel Vector3[T]) (Quaternion[T], error) {
	a, _, err := sensorInputs(gyro, accel, Vector3[T]{}, false)
	if err != nil {
		return f.quat, err
	}

	next, err := f.step(f.quat, gyro, imuGradient(f.quat, a))
	if err != nil {
		return f.quat, err
	}
	f.quat = next
	return next, nil
}

func (f *Madgwick[T]) reference(q Quaternion[T], m Vector3[T]) (bx, bz T) {
	if f.magRef != MagReferenceTracking && f.haveRef {
		return f.bx, f.bz
	}
	return earthField(q, m)
}

// step combines prediction and correction and integrates one period.
func (f *Madgwick[T]) step(q Quaternion[T], gyro Vector3[T], grad [4]T) (Quaternion[T], error) {
	qDot := gyroDerivative(q, gyro)

	s, err := normalizedGradient(grad)
	switch {
	case err == nil:
		qDot = qDot.Add(s.Scale(-f.beta))
	case errors.Is(err, ErrDegenerateGradient):
		// aligned: prediction only
	default:
		return q, err
	}

	return integrate(q, qDot, f.samplePeriod)
}

// Objective rows and their Jacobians. The gravity block is
// R(q)ᵀ(0,0,1) − â and the field block is R(q)ᵀ(bx,0,bz) − m̂; columns of
// each Jacobian are ∂/∂(w, x, y, z).

func gravityResidual[T Float](q Quaternion[T], a Vector3[T]) [3]T {
	return [3]T{
		2*(q.X*q.Z-q.W*q.Y) - a.X,
		2*(q.W*q.X+q.Y*q.Z) - a.Y,
		2*(0.5-q.X*q.X-q.Y*q.Y) - a.Z,
	}
}

func gravityJacobian[T Float](q Quaternion[T]) [3][4]T {
	return [3][4]T{
		{-2 * q.Y, 2 * q.Z, -2 * q.W, 2 * q.X},
		{2 * q.X, 2 * q.W, 2 * q.Z, 2 * q.Y},
		{0, -4 * q.X, -4 * q.Y, 0},
	}
}

func fieldResidual[T Float](q Quaternion[T], m Vector3[T], bx, bz T) [3]T {
	return [3]T{
		2*bx*(0.5-q.Y*q.Y-q.Z*q.Z) + 2*bz*(q.X*q.Z-q.W*q.Y) - m.X,
		2*bx*(q.X*q.Y-q.W*q.Z) + 2*bz*(q.W*q.X+q.Y*q.Z) - m.Y,
		2*bx*(q.W*q.Y+q.X*q.Z) + 2*bz*(0.5-q.X*q.X-q.Y*q.Y) - m.Z,
	}
}

func fieldJacobian[T Float](q Quaternion[T], bx, bz T) [3][4]T {
	return [3][4]T{
		{-2 * bz * q.Y, 2 * bz * q.Z, -4*bx*q.Y - 2*bz*q.W, -4*bx*q.Z + 2*bz*q.X},
		{-2*bx*q.Z + 2*bz*q.X, 2*bx*q.Y + 2*bz*q.W, 2*bx*q.X + 2*bz*q.Z, -2*bx*q.W + 2*bz*q.Y},
		{2 * bx * q.Y, 2*bx*q.Z - 4*bz*q.X, 2*bx*q.W - 4*bz*q.Y, 2 * bx * q.X},
	}
}

// accumulate adds Jᵀ·F of one 3-row block to grad.
func accumulate[T Float](grad *[4]T, j [3][4]T, f [3]T) {
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			grad[col] += j[row][col] * f[row]
		}
	}
}

func imuGradient[T Float](q Quaternion[T], a Vector3[T]) [4]T {
	var grad [4]T
	accumulate(&grad, gravityJacobian(q), gravityResidual(q, a))
	return grad
}

func margGradient[T Float](q Quaternion[T], a, m Vector3[T], bx, bz T) [4]T {
	grad := imuGradient(q, a)
	accumulate(&grad, fieldJacobian(q, bx, bz), fieldResidual(q, m, bx, bz))
	return grad
}

// normalizedGradient returns the unit gradient as a quaternion, or
// ErrDegenerateGradient when it has no direction.
func normalizedGradient[T Float](grad [4]T) (Quaternion[T], error) {
	g := Quaternion[T]{W: grad[0], X: grad[1], Y: grad[2], Z: grad[3]}
	s, ok := g.Normalize()
	if !ok {
		return Quaternion[T]{}, ErrDegenerateGradient
	}
	return s, nil
}
