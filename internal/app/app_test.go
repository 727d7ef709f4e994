// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/attitude_fusion/internal/config"
	"github.com/relabs-tech/attitude_fusion/internal/orientation"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeBroker records everything published through it.
type fakeBroker struct {
	mu   sync.Mutex
	msgs []message
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, message{topic: topic, retained: retained, payload: payload.([]byte)})
	return doneToken{}
}

func (b *fakeBroker) messages(topic string) []message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []message
	for _, m := range b.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func lastPose(t *testing.T, b *fakeBroker, topic string) orientation.Pose {
	t.Helper()
	msgs := b.messages(topic)
	if len(msgs) == 0 {
		t.Fatalf("nothing published on %s", topic)
	}
	var p orientation.Pose
	if err := json.Unmarshal(msgs[len(msgs)-1].payload, &p); err != nil {
		t.Fatal(err)
	}
	return p
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.FusionQueueSize = 4
	cfg.MockSampleInterval = 4
	cfg.FilterSamplePeriod = 0.004
	return cfg
}
