// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"fmt"

	"github.com/relabs-tech/attitude_fusion/internal/imu"
)

type imuSource struct {
	raw     imu.IMURawSource
	scale   imu.Scale
	tracker *Tracker
}

// NewIMUSource returns a Source that reads raw samples, converts them with
// scale and fuses them through tracker.
func NewIMUSource(raw imu.IMURawSource, scale imu.Scale, tracker *Tracker) Source {
	return &imuSource{raw: raw, scale: scale, tracker: tracker}
}

func (s *imuSource) Next() (Pose, error) {
	r, err := s.raw.NextRaw()
	if err != nil {
		return Pose{}, fmt.Errorf("%s read: %w", s.tracker.Name(), err)
	}
	return s.tracker.Step(s.scale.Convert(r))
}
