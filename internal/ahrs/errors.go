// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ahrs

import "errors"

var (
	// ErrInvalidInput is returned for non-finite sensor values and for
	// configuration outside its allowed range.
	ErrInvalidInput = errors.New("ahrs: invalid input")

	// ErrZeroNormInput is returned when the accelerometer or magnetometer
	// reading is too short to normalize.
	ErrZeroNormInput = errors.New("ahrs: zero-norm input")

	// ErrDegenerateGradient marks a correction gradient with no usable
	// direction. Updates treat it as "already aligned" and skip the
	// correction; it is never returned from Update or UpdateIMU.
	ErrDegenerateGradient = errors.New("ahrs: degenerate gradient")

	// ErrDegenerateQuaternion is returned when the integrated orientation
	// cannot be normalized.
	ErrDegenerateQuaternion = errors.New("ahrs: degenerate quaternion")
)
