// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"

	"github.com/relabs-tech/attitude_fusion/internal/ahrs"
	"github.com/relabs-tech/attitude_fusion/internal/imu"
)

// Earth-frame field used by the mock: ~48 µT with a downward dip.
var mockEarthField = ahrs.Vec3(22.0, 0, -43)

type mockSource struct {
	name  string
	scale imu.Scale
	dt    float64
	n     int
}

// NewMockSource creates a raw IMU source that synthesizes a board rolling,
// pitching and turning smoothly. Samples are spaced interval apart on the
// trajectory clock regardless of how fast they are read.
func NewMockSource(name string, scale imu.Scale, interval time.Duration) imu.IMURawSource {
	return &mockSource{name: name, scale: scale, dt: interval.Seconds()}
}

// mockOrientation is the ground-truth trajectory at time t in seconds.
func mockOrientation(t float64) ahrs.Quaternion[float64] {
	return FromEuler(
		20*math.Sin(t)/radToDeg,
		15*math.Cos(t*0.7)/radToDeg,
		math.Mod(t*30, 360)/radToDeg,
	)
}

// mockRate is the body-frame angular rate at time t, from q̇ = ½ q ⊗ (0, ω).
func mockRate(t float64) ahrs.Vector3[float64] {
	const h = 1e-5
	q := mockOrientation(t)
	next, prev := mockOrientation(t+h), mockOrientation(t-h)
	if next.Dot(prev) < 0 {
		next = next.Scale(-1)
	}
	if q.Dot(next) < 0 {
		q = q.Scale(-1)
	}
	qDot := next.Add(prev.Scale(-1)).Scale(1 / (2 * h))
	return q.Conjugate().Mul(qDot).Vector().Scale(2)
}

func (m *mockSource) NextRaw() (imu.IMURaw, error) {
	t := float64(m.n) * m.dt
	m.n++

	q := mockOrientation(t)
	return m.scale.Raw(imu.Sample{
		Source: m.name,
		Gyro:   mockRate(t),
		Accel:  q.RotateInverse(ahrs.Vec3(0.0, 0, 1)),
		Mag:    q.RotateInverse(mockEarthField),
		HasMag: true,
	}), nil
}
