// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"fmt"
	"math"

	"github.com/relabs-tech/attitude_fusion/internal/ahrs"
)

// MPU9250 sensitivities indexed by full-scale range setting.
var (
	// LSB/g for ±2g, ±4g, ±8g, ±16g
	accelSensitivity = [4]float64{16384, 8192, 4096, 2048}
	// LSB/(°/s) for ±250, ±500, ±1000, ±2000 °/s
	gyroSensitivity = [4]float64{131, 65.5, 32.8, 16.4}
)

// Sample is one IMU reading in physical units.
type Sample struct {
	Source string
	Gyro   ahrs.Vector3[float64] // rad/s
	Accel  ahrs.Vector3[float64] // g
	Mag    ahrs.Vector3[float64] // µT
	HasMag bool
}

// Scale converts raw counts to physical units.
type Scale struct {
	AccelLSBPerG     float64
	GyroLSBPerDegSec float64
	MagLSBPerMicroT  float64
}

// NewScale builds a Scale from MPU9250 range settings (0-3) and the
// magnetometer counts per µT used by the producer.
func NewScale(accelRange, gyroRange byte, magCountsPerMicroT float64) (Scale, error) {
	if int(accelRange) >= len(accelSensitivity) {
		return Scale{}, fmt.Errorf("imu: accel range %d out of 0-3", accelRange)
	}
	if int(gyroRange) >= len(gyroSensitivity) {
		return Scale{}, fmt.Errorf("imu: gyro range %d out of 0-3", gyroRange)
	}
	if !(magCountsPerMicroT > 0) {
		return Scale{}, fmt.Errorf("imu: mag scale must be > 0, got %v", magCountsPerMicroT)
	}
	return Scale{
		AccelLSBPerG:     accelSensitivity[accelRange],
		GyroLSBPerDegSec: gyroSensitivity[gyroRange],
		MagLSBPerMicroT:  magCountsPerMicroT,
	}, nil
}

// Convert turns raw counts into a Sample.
func (s Scale) Convert(raw IMURaw) Sample {
	gyro := math.Pi / 180 / s.GyroLSBPerDegSec
	return Sample{
		Source: raw.Source,
		Gyro:   ahrs.Vec3(float64(raw.Gx)*gyro, float64(raw.Gy)*gyro, float64(raw.Gz)*gyro),
		Accel: ahrs.Vec3(
			float64(raw.Ax)/s.AccelLSBPerG,
			float64(raw.Ay)/s.AccelLSBPerG,
			float64(raw.Az)/s.AccelLSBPerG,
		),
		Mag: ahrs.Vec3(
			float64(raw.Mx)/s.MagLSBPerMicroT,
			float64(raw.My)/s.MagLSBPerMicroT,
			float64(raw.Mz)/s.MagLSBPerMicroT,
		),
		HasMag: raw.HasMag(),
	}
}

// Raw quantizes a Sample back to counts, saturating at the int16 range.
// Used by the mock producer.
func (s Scale) Raw(sample Sample) IMURaw {
	gyro := 180 / math.Pi * s.GyroLSBPerDegSec
	raw := IMURaw{
		Source: sample.Source,
		Ax:     quantize(sample.Accel.X * s.AccelLSBPerG),
		Ay:     quantize(sample.Accel.Y * s.AccelLSBPerG),
		Az:     quantize(sample.Accel.Z * s.AccelLSBPerG),
		Gx:     quantize(sample.Gyro.X * gyro),
		Gy:     quantize(sample.Gyro.Y * gyro),
		Gz:     quantize(sample.Gyro.Z * gyro),
	}
	if sample.HasMag {
		raw.Mx = quantize(sample.Mag.X * s.MagLSBPerMicroT)
		raw.My = quantize(sample.Mag.Y * s.MagLSBPerMicroT)
		raw.Mz = quantize(sample.Mag.Z * s.MagLSBPerMicroT)
	}
	return raw
}

func quantize(v float64) int16 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(math.Round(v))
}
