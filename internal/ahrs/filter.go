// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package ahrs estimates orientation by fusing gyroscope, accelerometer and
// magnetometer readings into a unit quaternion.
//
// Quaternions are ordered (W, X, Y, Z) and rotate sensor-frame vectors into
// the earth frame, whose Z axis points up (a resting accelerometer reads
// +Z). Gyroscope readings are in rad/s; accelerometer and magnetometer units
// only need to be consistent because both are normalized.
//
// Filters are plain values with no locking. One filter belongs to one sensor
// stream; callers sharing a filter between goroutines must serialize access.
package ahrs

import "fmt"

// Filter is the update surface shared by Madgwick and Mahony.
type Filter[T Float] interface {
	// Update runs one MARG step (gyro, accel and mag).
	Update(gyro, accel, mag Vector3[T]) (Quaternion[T], error)
	// UpdateIMU runs one step without magnetometer; yaw is unobserved.
	UpdateIMU(gyro, accel Vector3[T]) (Quaternion[T], error)
	// Quaternion returns the committed orientation.
	Quaternion() Quaternion[T]
	// Reset re-seeds the orientation and clears learned state.
	Reset(q Quaternion[T]) error
}

var (
	_ Filter[float64] = (*Madgwick[float64])(nil)
	_ Filter[float32] = (*Mahony[float32])(nil)
)

// DefaultSamplePeriod is 1/256 s.
const DefaultSamplePeriod = 1.0 / 256.0

func checkSamplePeriod[T Float](dt T) error {
	if !isFinite(dt) || dt <= 0 {
		return fmt.Errorf("%w: sample period %v must be finite and > 0", ErrInvalidInput, dt)
	}
	return nil
}

func checkGain[T Float](name string, g T) error {
	if !isFinite(g) || g < 0 {
		return fmt.Errorf("%w: %s %v must be finite and >= 0", ErrInvalidInput, name, g)
	}
	return nil
}

func initialOrientation[T Float](q Quaternion[T]) (Quaternion[T], error) {
	if !q.IsFinite() {
		return Quaternion[T]{}, fmt.Errorf("%w: initial orientation is not finite", ErrInvalidInput)
	}
	u, ok := q.Normalize()
	if !ok {
		return Quaternion[T]{}, fmt.Errorf("%w: initial orientation cannot be normalized", ErrInvalidInput)
	}
	return u, nil
}

// sensorInputs validates the readings and returns the normalized
// accelerometer (and magnetometer when withMag is set).
func sensorInputs[T Float](gyro, accel, mag Vector3[T], withMag bool) (a, m Vector3[T], err error) {
	if !gyro.IsFinite() {
		return a, m, fmt.Errorf("%w: gyroscope reading is not finite", ErrInvalidInput)
	}
	if !accel.IsFinite() {
		return a, m, fmt.Errorf("%w: accelerometer reading is not finite", ErrInvalidInput)
	}
	if withMag && !mag.IsFinite() {
		return a, m, fmt.Errorf("%w: magnetometer reading is not finite", ErrInvalidInput)
	}

	var ok bool
	if a, ok = accel.Normalize(); !ok {
		return a, m, fmt.Errorf("%w: accelerometer", ErrZeroNormInput)
	}
	if withMag {
		if m, ok = mag.Normalize(); !ok {
			return a, m, fmt.Errorf("%w: magnetometer", ErrZeroNormInput)
		}
	}
	return a, m, nil
}

// integrate performs the explicit Euler step and renormalizes.
func integrate[T Float](q, qDot Quaternion[T], dt T) (Quaternion[T], error) {
	next, ok := q.Add(qDot.Scale(dt)).Normalize()
	if !ok {
		return q, fmt.Errorf("%w: integrated norm is zero or not finite", ErrDegenerateQuaternion)
	}
	return next, nil
}

// gyroDerivative is the prediction term 0.5 * q ⊗ (0, g).
func gyroDerivative[T Float](q Quaternion[T], g Vector3[T]) Quaternion[T] {
	return q.Mul(Pure(g)).Scale(0.5)
}

// earthField returns b = (bx, 0, bz) for a normalized sensor-frame
// magnetometer reading seen through q.
func earthField[T Float](q Quaternion[T], m Vector3[T]) (bx, bz T) {
	h := q.Rotate(m)
	return Vec3(h.X, h.Y, 0).Norm(), h.Z
}
