// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

//go:build ahrs_internals

// Mutable access to filter internals for test and debug instrumentation.
// Only compiled with -tags ahrs_internals.

package ahrs

// SamplePeriod returns the integration period in seconds.
func (f *Madgwick[T]) SamplePeriod() T { return f.samplePeriod }

// SetSamplePeriod changes the integration period.
func (f *Madgwick[T]) SetSamplePeriod(dt T) error {
	if err := checkSamplePeriod(dt); err != nil {
		return err
	}
	f.samplePeriod = dt
	return nil
}

// Beta returns the correction gain.
func (f *Madgwick[T]) Beta() T { return f.beta }

// SetBeta changes the correction gain.
func (f *Madgwick[T]) SetBeta(beta T) error {
	if err := checkGain("beta", beta); err != nil {
		return err
	}
	f.beta = beta
	return nil
}

// RawQuaternion exposes the state quaternion. Writes through it bypass
// validation; the next update renormalizes whatever is stored.
func (f *Madgwick[T]) RawQuaternion() *Quaternion[T] { return &f.quat }

func (f *Mahony[T]) SamplePeriod() T { return f.samplePeriod }

func (f *Mahony[T]) SetSamplePeriod(dt T) error {
	if err := checkSamplePeriod(dt); err != nil {
		return err
	}
	f.samplePeriod = dt
	return nil
}

// Kp returns the proportional gain.
func (f *Mahony[T]) Kp() T { return f.kp }

func (f *Mahony[T]) SetKp(kp T) error {
	if err := checkGain("kp", kp); err != nil {
		return err
	}
	f.kp = kp
	return nil
}

// Ki returns the integral gain.
func (f *Mahony[T]) Ki() T { return f.ki }

func (f *Mahony[T]) SetKi(ki T) error {
	if err := checkGain("ki", ki); err != nil {
		return err
	}
	f.ki = ki
	return nil
}

// IntegralError exposes the accumulated integral error.
func (f *Mahony[T]) IntegralError() *Vector3[T] { return &f.eInt }

func (f *Mahony[T]) RawQuaternion() *Quaternion[T] { return &f.quat }
