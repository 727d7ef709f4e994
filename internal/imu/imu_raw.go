// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

// IMURaw represents a single raw IMU+mag sample as published on MQTT.
// Magnetometer counts are scaled by the producer (µT×10 by convention);
// a zero triple means no magnetometer reading was available.
type IMURaw struct {
	Source string `json:"source"` // "left" or "right"

	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`

	Mx int16 `json:"mx"` // magnetometer
	My int16 `json:"my"`
	Mz int16 `json:"mz"`
}

// HasMag reports whether the sample carries a magnetometer reading.
func (r IMURaw) HasMag() bool {
	return r.Mx != 0 || r.My != 0 || r.Mz != 0
}

type IMURawSource interface {
	NextRaw() (IMURaw, error)
}
