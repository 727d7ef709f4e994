// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/attitude_fusion/internal/config"
	"github.com/relabs-tech/attitude_fusion/internal/imu"
	"github.com/relabs-tech/attitude_fusion/internal/orientation"
)

// throttle lets one line per key through every interval.
type throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
}

func newThrottle(interval time.Duration) *throttle {
	return &throttle{interval: interval, last: make(map[string]time.Time)}
}

func (t *throttle) allow(key string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.last[key] = now
	return true
}

func printPose(w io.Writer, tag string, p orientation.Pose) {
	fmt.Fprintf(w,
		"[%-5s] ROLL=%7.2f  PITCH=%7.2f  YAW=%7.2f  q=(%.4f, %.4f, %.4f, %.4f)\n",
		tag, p.Roll, p.Pitch, p.Yaw, p.QW, p.QX, p.QY, p.QZ,
	)
}

func printRaw(w io.Writer, tag string, s imu.IMURaw) {
	fmt.Fprintf(w,
		"[%-5s] ax=%6d ay=%6d az=%6d  gx=%6d gy=%6d gz=%6d  mx=%6d my=%6d mz=%6d\n",
		tag, s.Ax, s.Ay, s.Az, s.Gx, s.Gy, s.Gz, s.Mx, s.My, s.Mz,
	)
}

func RunConsoleMQTT() error {
	cfg := config.Get()
	limit := newThrottle(time.Duration(cfg.ConsoleLogInterval) * time.Millisecond)

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	poses := []struct{ tag, topic string }{
		{"POSE", cfg.TopicPoseFused},
		{"POS-L", cfg.TopicPoseLeft},
		{"POS-R", cfg.TopicPoseRight},
	}
	for _, s := range poses {
		if s.topic == "" {
			continue
		}
		tag := s.tag
		err := subscribe(client, s.topic, func(_ mqtt.Client, msg mqtt.Message) {
			var p orientation.Pose
			if err := json.Unmarshal(msg.Payload(), &p); err != nil {
				log.Printf("console: %s unmarshal error: %v", tag, err)
				return
			}
			if limit.allow(tag, time.Now()) {
				printPose(os.Stdout, tag, p)
			}
		})
		if err != nil {
			return err
		}
	}

	raws := []struct{ tag, topic string }{
		{"IMU-L", cfg.TopicIMULeft},
		{"IMU-R", cfg.TopicIMURight},
	}
	for _, s := range raws {
		if s.topic == "" {
			continue
		}
		tag := s.tag
		err := subscribe(client, s.topic, func(_ mqtt.Client, msg mqtt.Message) {
			var raw imu.IMURaw
			if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
				log.Printf("console: %s unmarshal error: %v", tag, err)
				return
			}
			if limit.allow(tag, time.Now()) {
				printRaw(os.Stdout, tag, raw)
			}
		})
		if err != nil {
			return err
		}
	}

	// Wait for Ctrl+C
	ctx, stop := signalContext()
	defer stop()
	<-ctx.Done()

	log.Println("console: shutting down")
	return nil
}
