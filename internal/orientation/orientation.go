// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"

	"github.com/relabs-tech/attitude_fusion/internal/ahrs"
)

const radToDeg = 180.0 / math.Pi

// Pose is the canonical representation of orientation for the app.
// Angles are in degrees (ZYX: yaw about z, then pitch about y, then roll
// about x); the quaternion rotates sensor-frame vectors into the earth frame.
type Pose struct {
	Source string  `json:"source,omitempty"`
	Roll   float64 `json:"roll"`
	Pitch  float64 `json:"pitch"`
	Yaw    float64 `json:"yaw"`

	QW float64 `json:"qw"`
	QX float64 `json:"qx"`
	QY float64 `json:"qy"`
	QZ float64 `json:"qz"`
}

// Source is anything that can provide poses over time.
type Source interface {
	Next() (Pose, error)
}

// FromQuaternion converts a filter orientation into a Pose.
func FromQuaternion(source string, q ahrs.Quaternion[float64]) Pose {
	roll, pitch, yaw := q.EulerAngles()
	return Pose{
		Source: source,
		Roll:   roll * radToDeg,
		Pitch:  pitch * radToDeg,
		Yaw:    yaw * radToDeg,
		QW:     q.W,
		QX:     q.X,
		QY:     q.Y,
		QZ:     q.Z,
	}
}

// Quaternion returns the pose orientation as a quaternion.
func (p Pose) Quaternion() ahrs.Quaternion[float64] {
	return ahrs.Quaternion[float64]{W: p.QW, X: p.QX, Y: p.QY, Z: p.QZ}
}

// FromEuler builds the orientation for ZYX angles given in radians.
func FromEuler(roll, pitch, yaw float64) ahrs.Quaternion[float64] {
	qz := ahrs.FromAxisAngle(ahrs.Vec3(0.0, 0, 1), yaw)
	qy := ahrs.FromAxisAngle(ahrs.Vec3(0.0, 1, 0), pitch)
	qx := ahrs.FromAxisAngle(ahrs.Vec3(1.0, 0, 0), roll)
	return qz.Mul(qy).Mul(qx)
}

// ComputePoseFromAccel computes roll and pitch from accelerometer data only.
// Yaw is unobservable from gravity and is reported as 0.
//
// Uses simple tilt formulas:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func ComputePoseFromAccel(ax, ay, az float64) Pose {
	rollRad := math.Atan2(ay, az)
	pitchRad := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	q := FromEuler(rollRad, pitchRad, 0)
	return Pose{
		Roll:  rollRad * radToDeg,
		Pitch: pitchRad * radToDeg,
		QW:    q.W,
		QX:    q.X,
		QY:    q.Y,
		QZ:    q.Z,
	}
}

// Blend returns the normalized mean of two orientations. b is flipped into
// a's hemisphere first so q and -q blend to the same rotation.
func Blend(a, b ahrs.Quaternion[float64]) ahrs.Quaternion[float64] {
	if a.Dot(b) < 0 {
		b = b.Scale(-1)
	}
	m, ok := a.Add(b).Normalize()
	if !ok {
		return a
	}
	return m
}
