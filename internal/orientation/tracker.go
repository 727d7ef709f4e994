// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/relabs-tech/attitude_fusion/internal/ahrs"
	"github.com/relabs-tech/attitude_fusion/internal/imu"
)

// FilterConfig selects and tunes the filter behind a Tracker.
type FilterConfig struct {
	Algorithm    string // "madgwick" or "mahony"
	SamplePeriod float64
	Beta         float64
	Kp           float64
	Ki           float64

	// Madgwick only: "tracking" (default), "latched" or "fixed". The fixed
	// reference is the earth-frame field (MagBX, 0, MagBZ).
	MagReference string
	MagBX        float64
	MagBZ        float64
}

// NewFilter builds a filter starting at the identity orientation.
func NewFilter(cfg FilterConfig) (ahrs.Filter[float64], error) {
	switch strings.ToLower(cfg.Algorithm) {
	case "", "madgwick":
		var opts []ahrs.Option[float64]
		switch strings.ToLower(cfg.MagReference) {
		case "", "tracking":
		case "latched":
			opts = append(opts, ahrs.WithLatchedMagReference[float64]())
		case "fixed":
			opts = append(opts, ahrs.WithMagReference(cfg.MagBX, cfg.MagBZ))
		default:
			return nil, fmt.Errorf("orientation: unknown magnetic reference %q", cfg.MagReference)
		}
		f, err := ahrs.NewMadgwick(cfg.SamplePeriod, cfg.Beta, ahrs.Identity[float64](), opts...)
		if err != nil {
			return nil, fmt.Errorf("orientation: madgwick: %w", err)
		}
		return f, nil
	case "mahony":
		f, err := ahrs.NewMahony(cfg.SamplePeriod, cfg.Kp, cfg.Ki, ahrs.Identity[float64]())
		if err != nil {
			return nil, fmt.Errorf("orientation: mahony: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("orientation: unknown filter algorithm %q", cfg.Algorithm)
	}
}

// Stats counts the samples a Tracker has processed.
type Stats struct {
	Accepted  uint64 `json:"accepted"`
	Rejected  uint64 `json:"rejected"`
	MARG      uint64 `json:"marg"`
	LastError string `json:"last_error,omitempty"`
}

// Tracker owns the filter of one sensor stream. It is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	name     string
	filter   ahrs.Filter[float64]
	useMag   bool
	pose     Pose
	havePose bool
	seeded   bool
	stats    Stats
}

// NewTracker wraps filter for the stream called name. With useMag false
// magnetometer readings are ignored.
func NewTracker(name string, filter ahrs.Filter[float64], useMag bool) *Tracker {
	return &Tracker{name: name, filter: filter, useMag: useMag}
}

// Name returns the stream name.
func (t *Tracker) Name() string { return t.name }

// Step feeds one sample into the filter and returns the updated pose.
// The first usable accelerometer reading after construction or Reset
// seeds the filter with its tilt. Otherwise a rejected sample leaves the
// filter and the last pose untouched.
func (t *Tracker) Step(s imu.Sample) (Pose, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.seeded {
		t.seed(s.Accel)
	}
	q, marg, err := t.update(s)
	if err != nil {
		t.stats.Rejected++
		t.stats.LastError = err.Error()
		return Pose{}, fmt.Errorf("tracker %s: %w", t.name, err)
	}

	t.stats.Accepted++
	if marg {
		t.stats.MARG++
	}
	t.pose = FromQuaternion(t.name, q)
	t.havePose = true
	return t.pose, nil
}

// seed starts the filter at the roll and pitch measured by gravity, so it
// does not have to converge there from identity at beta·dt per step.
func (t *Tracker) seed(accel ahrs.Vector3[float64]) {
	if _, ok := accel.Normalize(); !ok {
		return
	}
	tilt := ComputePoseFromAccel(accel.X, accel.Y, accel.Z)
	if err := t.filter.Reset(tilt.Quaternion()); err == nil {
		t.seeded = true
	}
}

func (t *Tracker) update(s imu.Sample) (ahrs.Quaternion[float64], bool, error) {
	if t.useMag && s.HasMag {
		q, err := t.filter.Update(s.Gyro, s.Accel, s.Mag)
		if err == nil {
			return q, true, nil
		}
		if !errors.Is(err, ahrs.ErrZeroNormInput) {
			return q, false, err
		}
		// retry without the field; still fails if gravity was the zero input
	}
	q, err := t.filter.UpdateIMU(s.Gyro, s.Accel)
	return q, false, err
}

// Pose returns the last accepted pose.
func (t *Tracker) Pose() (Pose, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pose, t.havePose
}

// Stats returns a snapshot of the sample counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Reset returns the filter to the identity orientation and forgets the
// last pose, so the next sample seeds the tilt again. Counters are kept.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.filter.Reset(ahrs.Identity[float64]()); err != nil {
		return fmt.Errorf("tracker %s: %w", t.name, err)
	}
	t.pose = Pose{}
	t.havePose = false
	t.seeded = false
	return nil
}
