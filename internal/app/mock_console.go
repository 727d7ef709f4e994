// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/relabs-tech/attitude_fusion/internal/config"
	"github.com/relabs-tech/attitude_fusion/internal/imu"
	"github.com/relabs-tech/attitude_fusion/internal/orientation"
)

func mockScale(cfg *config.Config) (imu.Scale, time.Duration, error) {
	scale, err := imu.NewScale(cfg.IMUAccelRange, cfg.IMUGyroRange, cfg.IMUMagScale)
	if err != nil {
		return imu.Scale{}, 0, err
	}
	return scale, time.Duration(cfg.MockSampleInterval) * time.Millisecond, nil
}

// RunMockConsole fuses the mock source locally and prints poses, without MQTT.
func RunMockConsole() error {
	cfg := config.Get()
	scale, interval, err := mockScale(cfg)
	if err != nil {
		return err
	}

	filter, err := orientation.NewFilter(filterConfig(cfg, interval.Seconds()))
	if err != nil {
		return err
	}
	tracker := orientation.NewTracker("mock", filter, cfg.FilterUseMag)
	src := orientation.NewIMUSource(orientation.NewMockSource("mock", scale, interval), scale, tracker)
	limit := newThrottle(time.Duration(cfg.ConsoleLogInterval) * time.Millisecond)

	ctx, stop := signalContext()
	defer stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("console: shutting down")
			return nil
		case t := <-ticker.C:
			pose, err := src.Next()
			if err != nil {
				return fmt.Errorf("mock console: %w", err)
			}
			if limit.allow("mock", t) {
				printPose(os.Stdout, "MOCK", pose)
			}
		}
	}
}

// MockProducer publishes synthetic raw samples on the IMU topics.
type MockProducer struct {
	pub     publisher
	scale   imu.Scale
	sources []mockTopic
}

type mockTopic struct {
	topic string
	src   imu.IMURawSource
}

func NewMockProducer(cfg *config.Config, pub publisher) (*MockProducer, error) {
	scale, interval, err := mockScale(cfg)
	if err != nil {
		return nil, err
	}
	p := &MockProducer{pub: pub, scale: scale}
	for _, s := range []struct{ name, topic string }{
		{StreamLeft, cfg.TopicIMULeft},
		{StreamRight, cfg.TopicIMURight},
	} {
		if s.topic == "" {
			continue
		}
		p.sources = append(p.sources, mockTopic{
			topic: s.topic,
			src:   orientation.NewMockSource(s.name, scale, interval),
		})
	}
	return p, nil
}

// PublishOnce emits one sample per topic.
func (p *MockProducer) PublishOnce() error {
	for _, s := range p.sources {
		raw, err := s.src.NextRaw()
		if err != nil {
			return fmt.Errorf("mock %s: %w", s.topic, err)
		}
		if err := publishJSON(p.pub, s.topic, false, raw); err != nil {
			return fmt.Errorf("mock publish %s: %w", s.topic, err)
		}
	}
	return nil
}

// Run publishes on every tick until ctx is cancelled.
func (p *MockProducer) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var sent uint64
	for {
		select {
		case <-ctx.Done():
			log.Printf("mock producer: stopped after %d ticks", sent)
			return nil
		case <-ticker.C:
			if err := p.PublishOnce(); err != nil {
				log.Printf("mock producer: %v", err)
				continue
			}
			sent++
		}
	}
}

// RunMockProducer publishes mock raw IMU samples over MQTT until interrupted.
func RunMockProducer() error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDMock)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	producer, err := NewMockProducer(cfg, client)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	log.Printf("mock producer: publishing every %d ms", cfg.MockSampleInterval)
	return producer.Run(ctx, time.Duration(cfg.MockSampleInterval)*time.Millisecond)
}
