// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"image/png"
	"log"
	"net/http"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/attitude_fusion/internal/config"
	"github.com/relabs-tech/attitude_fusion/internal/orientation"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// PoseStore keeps the latest pose of each stream.
type PoseStore struct {
	mu    sync.RWMutex
	poses map[string]orientation.Pose
}

func NewPoseStore() *PoseStore {
	return &PoseStore{poses: make(map[string]orientation.Pose)}
}

func (s *PoseStore) Set(stream string, p orientation.Pose) {
	s.mu.Lock()
	s.poses[stream] = p
	s.mu.Unlock()
}

func (s *PoseStore) Get(stream string) (orientation.Pose, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.poses[stream]
	return p, ok
}

// PoseHub fans fused poses out to WebSocket clients. A client that cannot
// keep up misses poses instead of stalling the others.
type PoseHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan orientation.Pose
}

func NewPoseHub() *PoseHub {
	return &PoseHub{clients: make(map[*websocket.Conn]chan orientation.Pose)}
}

func (h *PoseHub) Broadcast(p orientation.Pose) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- p:
		default:
		}
	}
}

func (h *PoseHub) add(conn *websocket.Conn) chan orientation.Pose {
	ch := make(chan orientation.Pose, 16)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *PoseHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
}

// serveWS streams poses to one client until it disconnects.
func (h *PoseHub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ch := h.add(conn)
	defer h.remove(conn)

	// Reader detects the close; clients are not expected to send anything.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case p := <-ch:
			if err := conn.WriteJSON(p); err != nil {
				log.Printf("web: websocket write error: %v", err)
				return
			}
		}
	}
}

// NewWebHandler serves the pose API, the pose stream, the attitude image
// and the static files under staticDir.
func NewWebHandler(store *PoseStore, hub *PoseHub, staticDir string) http.Handler {
	mux := http.NewServeMux()

	writePose := func(w http.ResponseWriter, stream string) {
		p, ok := store.Get(stream)
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(p); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	}

	mux.HandleFunc("GET /api/orientation", func(w http.ResponseWriter, r *http.Request) {
		writePose(w, StreamFused)
	})
	mux.HandleFunc("GET /api/orientation/{stream}", func(w http.ResponseWriter, r *http.Request) {
		stream := r.PathValue("stream")
		if stream != StreamLeft && stream != StreamRight && stream != StreamFused {
			http.NotFound(w, r)
			return
		}
		writePose(w, stream)
	})
	mux.HandleFunc("GET /api/attitude.png", func(w http.ResponseWriter, r *http.Request) {
		p, ok := store.Get(StreamFused)
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		if err := png.Encode(w, renderOrientation(p, ok, StreamFused)); err != nil {
			log.Printf("web: png encode error: %v", err)
		}
	})
	mux.HandleFunc("GET /ws/orientation", hub.serveWS)

	mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	return mux
}

// RunWeb subscribes to the pose topics and serves them over HTTP.
func RunWeb() error {
	cfg := config.Get()
	store := NewPoseStore()
	hub := NewPoseHub()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	topics := []struct{ stream, topic string }{
		{StreamLeft, cfg.TopicPoseLeft},
		{StreamRight, cfg.TopicPoseRight},
		{StreamFused, cfg.TopicPoseFused},
	}
	for _, t := range topics {
		if t.topic == "" {
			continue
		}
		stream := t.stream
		err := subscribe(client, t.topic, func(_ mqtt.Client, msg mqtt.Message) {
			var p orientation.Pose
			if err := json.Unmarshal(msg.Payload(), &p); err != nil {
				log.Printf("web: %s pose unmarshal error: %v", stream, err)
				return
			}
			store.Set(stream, p)
			if stream == StreamFused {
				hub.Broadcast(p)
			}
		})
		if err != nil {
			return err
		}
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, NewWebHandler(store, hub, "web"))
}
