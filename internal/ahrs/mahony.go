// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ahrs

// Default Mahony gains.
const (
	DefaultKp = 0.5
	DefaultKi = 0.0
)

// Mahony is the complementary PI filter: the cross product between measured
// and estimated reference directions feeds back into the gyro rate.
type Mahony[T Float] struct {
	samplePeriod T
	kp           T
	ki           T
	eInt         Vector3[T]
	quat         Quaternion[T]
}

// NewMahony validates the configuration and returns a filter seeded with
// initial.
func NewMahony[T Float](samplePeriod, kp, ki T, initial Quaternion[T]) (*Mahony[T], error) {
	if err := checkSamplePeriod(samplePeriod); err != nil {
		return nil, err
	}
	if err := checkGain("kp", kp); err != nil {
		return nil, err
	}
	if err := checkGain("ki", ki); err != nil {
		return nil, err
	}
	q, err := initialOrientation(initial)
	if err != nil {
		return nil, err
	}
	return &Mahony[T]{samplePeriod: samplePeriod, kp: kp, ki: ki, quat: q}, nil
}

// DefaultMahony returns a filter with a 1/256 s period, kp 0.5, ki 0 and the
// identity orientation.
func DefaultMahony[T Float]() *Mahony[T] {
	return &Mahony[T]{
		samplePeriod: DefaultSamplePeriod,
		kp:           DefaultKp,
		ki:           DefaultKi,
		quat:         Identity[T](),
	}
}

func (f *Mahony[T]) Quaternion() Quaternion[T] {
	return f.quat
}

// Reset re-seeds the orientation and clears the integral error.
func (f *Mahony[T]) Reset(q Quaternion[T]) error {
	u, err := initialOrientation(q)
	if err != nil {
		return err
	}
	f.quat = u
	f.eInt = Vector3[T]{}
	return nil
}

// Update runs one MARG step. On error the filter state is unchanged.
func (f *Mahony[T]) Update(gyro, accel, mag Vector3[T]) (Quaternion[T], error) {
	a, m, err := sensorInputs(gyro, accel, mag, true)
	if err != nil {
		return f.quat, err
	}

	q := f.quat
	bx, bz := earthField(q, m)
	v := q.RotateInverse(Vec3[T](0, 0, 1))
	w := q.RotateInverse(Vec3(bx, 0, bz))

	return f.feedback(gyro, a.Cross(v).Add(m.Cross(w)))
}

// UpdateIMU runs one step from gyro and accel only. On error the filter
// state is unchanged.
func (f *Mahony[T]) UpdateIMU(gyro, accel Vector3[T]) (Quaternion[T], error) {
	a, _, err := sensorInputs(gyro, accel, Vector3[T]{}, false)
	if err != nil {
		return f.quat, err
	}

	v := f.quat.RotateInverse(Vec3[T](0, 0, 1))
	return f.feedback(gyro, a.Cross(v))
}

// feedback applies the PI correction for error e and commits the step.
func (f *Mahony[T]) feedback(gyro, e Vector3[T]) (Quaternion[T], error) {
	var eInt Vector3[T]
	if f.ki > 0 {
		eInt = f.eInt.Add(e.Scale(f.samplePeriod))
	}

	g := gyro.Add(e.Scale(f.kp)).Add(eInt.Scale(f.ki))
	next, err := integrate(f.quat, gyroDerivative(f.quat, g), f.samplePeriod)
	if err != nil {
		return f.quat, err
	}

	f.quat = next
	f.eInt = eInt
	return next, nil
}
