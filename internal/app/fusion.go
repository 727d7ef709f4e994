// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/attitude_fusion/internal/config"
	"github.com/relabs-tech/attitude_fusion/internal/imu"
	"github.com/relabs-tech/attitude_fusion/internal/orientation"
)

// Stream names, also used as Pose.Source.
const (
	StreamLeft  = "left"
	StreamRight = "right"
	StreamFused = "fused"
)

type stream struct {
	name      string
	inTopic   string
	poseTopic string
	tracker   *orientation.Tracker
	queue     chan imu.IMURaw
}

// FusionService turns raw IMU samples into poses, one filter per stream.
type FusionService struct {
	pub        publisher
	scale      imu.Scale
	fusedTopic string
	streams    []*stream

	mu     sync.Mutex
	latest map[string]orientation.Pose
}

// NewFusionService builds a tracker for every configured input topic.
func NewFusionService(cfg *config.Config, pub publisher) (*FusionService, error) {
	scale, err := imu.NewScale(cfg.IMUAccelRange, cfg.IMUGyroRange, cfg.IMUMagScale)
	if err != nil {
		return nil, err
	}

	s := &FusionService{
		pub:        pub,
		scale:      scale,
		fusedTopic: cfg.TopicPoseFused,
		latest:     make(map[string]orientation.Pose),
	}

	inputs := []struct{ name, in, out string }{
		{StreamLeft, cfg.TopicIMULeft, cfg.TopicPoseLeft},
		{StreamRight, cfg.TopicIMURight, cfg.TopicPoseRight},
	}
	for _, in := range inputs {
		if in.in == "" {
			continue
		}
		filter, err := orientation.NewFilter(filterConfig(cfg, cfg.FilterSamplePeriod))
		if err != nil {
			return nil, fmt.Errorf("fusion %s: %w", in.name, err)
		}
		s.streams = append(s.streams, &stream{
			name:      in.name,
			inTopic:   in.in,
			poseTopic: in.out,
			tracker:   orientation.NewTracker(in.name, filter, cfg.FilterUseMag),
			queue:     make(chan imu.IMURaw, cfg.FusionQueueSize),
		})
	}
	return s, nil
}

// filterConfig maps the FILTER_* keys onto a filter running at samplePeriod.
func filterConfig(cfg *config.Config, samplePeriod float64) orientation.FilterConfig {
	return orientation.FilterConfig{
		Algorithm:    cfg.FilterAlgorithm,
		SamplePeriod: samplePeriod,
		Beta:         cfg.FilterBeta,
		Kp:           cfg.FilterKp,
		Ki:           cfg.FilterKi,
		MagReference: cfg.FilterMagReference,
		MagBX:        cfg.FilterMagBX,
		MagBZ:        cfg.FilterMagBZ,
	}
}

// Tracker returns the tracker for a stream, or nil.
func (s *FusionService) Tracker(name string) *orientation.Tracker {
	if st := s.stream(name); st != nil {
		return st.tracker
	}
	return nil
}

func (s *FusionService) stream(name string) *stream {
	for _, st := range s.streams {
		if st.name == name {
			return st
		}
	}
	return nil
}

// Enqueue hands a raw sample to the stream worker. It never blocks; a full
// queue drops the sample and returns false.
func (s *FusionService) Enqueue(name string, raw imu.IMURaw) bool {
	st := s.stream(name)
	if st == nil {
		return false
	}
	select {
	case st.queue <- raw:
		return true
	default:
		log.Printf("fusion: %s queue full, dropping sample", name)
		return false
	}
}

// Run starts one worker per stream and blocks until ctx is cancelled.
func (s *FusionService) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, st := range s.streams {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case raw := <-st.queue:
					s.process(st, raw)
				}
			}
		})
	}
	return g.Wait()
}

// process runs one sample through the stream tracker and publishes the
// stream pose and the fused pose. Rejected samples are logged and skipped.
func (s *FusionService) process(st *stream, raw imu.IMURaw) {
	pose, err := st.tracker.Step(s.scale.Convert(raw))
	if err != nil {
		log.Printf("fusion: %v", err)
		return
	}

	if st.poseTopic != "" {
		if err := publishJSON(s.pub, st.poseTopic, true, pose); err != nil {
			log.Printf("fusion: publish %s error: %v", st.poseTopic, err)
		}
	}

	fused := s.fuse(pose)
	if err := publishJSON(s.pub, s.fusedTopic, true, fused); err != nil {
		log.Printf("fusion: publish %s error: %v", s.fusedTopic, err)
	}
}

// fuse records the latest pose of a stream and blends all streams seen so far.
func (s *FusionService) fuse(pose orientation.Pose) orientation.Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[pose.Source] = pose

	left, haveLeft := s.latest[StreamLeft]
	right, haveRight := s.latest[StreamRight]
	q := pose.Quaternion()
	if haveLeft && haveRight {
		q = orientation.Blend(left.Quaternion(), right.Quaternion())
	}
	return orientation.FromQuaternion(StreamFused, q)
}

// RunFusion subscribes to the raw IMU topics and publishes fused poses
// until interrupted.
func RunFusion() error {
	cfg := config.Get()
	log.Printf("fusion: %s filter, sample period %.5fs", cfg.FilterAlgorithm, cfg.FilterSamplePeriod)

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDFusion)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	svc, err := NewFusionService(cfg, client)
	if err != nil {
		return err
	}

	for _, st := range svc.streams {
		name := st.name
		err := subscribe(client, st.inTopic, func(_ mqtt.Client, msg mqtt.Message) {
			var raw imu.IMURaw
			if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
				log.Printf("fusion: imu %s unmarshal error: %v", name, err)
				return
			}
			svc.Enqueue(name, raw)
		})
		if err != nil {
			return err
		}
	}

	ctx, stop := signalContext()
	defer stop()
	err = svc.Run(ctx)

	for _, st := range svc.streams {
		stats := st.tracker.Stats()
		log.Printf("fusion: %s accepted=%d rejected=%d marg=%d", st.name, stats.Accepted, stats.Rejected, stats.MARG)
	}
	log.Println("fusion: shutting down")
	return err
}
