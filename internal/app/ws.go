// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/inertial_intervals/internal/measurement"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is a command sent by a WebSocket client.
type WSMessage struct {
	Action string  `json:"action"` // status, reset, threshold_factor
	Value  float64 `json:"value,omitempty"`
}

// WSResponse is a message sent to WebSocket clients.
type WSResponse struct {
	Type    string             `json:"type"` // event, status, ok, error
	Event   *measurement.Event `json:"event,omitempty"`
	Status  *Status            `json:"status,omitempty"`
	Message string             `json:"message,omitempty"`
}

// Hub fans pipeline events out to the connected WebSocket clients. Slow
// clients lose events rather than stall the pipeline.
type Hub struct {
	mu      sync.Mutex
	clients map[chan WSResponse]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan WSResponse]struct{})}
}

// Handle implements measurement.Listener.
func (h *Hub) Handle(ev measurement.Event) {
	e := ev
	msg := WSResponse{Type: "event", Event: &e}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c <- msg:
		default:
		}
	}
}

func (h *Hub) subscribe() chan WSResponse {
	c := make(chan WSResponse, 64)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) unsubscribe(c chan WSResponse) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// HandleIntervalsWS streams events and accepts commands over a WebSocket.
func HandleIntervalsWS(p *Pipeline, hub *Hub, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade error", "error", err)
			return
		}
		defer conn.Close()

		events := hub.subscribe()
		defer hub.unsubscribe(events)

		// gorilla connections support a single writer
		replies := make(chan WSResponse, 4)
		done := make(chan struct{})
		defer close(done)
		go func() {
			for {
				var msg WSResponse
				select {
				case msg = <-events:
				case msg = <-replies:
				case <-done:
					return
				}
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					log.Debug("websocket write error", "error", err)
					return
				}
			}
		}()

		st := p.Status()
		replies <- WSResponse{Type: "status", Status: &st}

		for {
			var msg WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				log.Debug("websocket read error", "error", err)
				return
			}
			resp := runCommand(r.Context(), p, msg)
			select {
			case replies <- resp:
			case <-r.Context().Done():
				return
			}
		}
	}
}

func runCommand(ctx context.Context, p *Pipeline, msg WSMessage) WSResponse {
	var err error
	switch msg.Action {
	case "status":
		st := p.Status()
		return WSResponse{Type: "status", Status: &st}
	case "reset":
		err = p.Reset(ctx)
	case "threshold_factor":
		err = p.SetThresholdFactor(ctx, msg.Value)
	default:
		return WSResponse{Type: "error", Message: "unknown action: " + msg.Action}
	}
	if err != nil {
		return WSResponse{Type: "error", Message: err.Error()}
	}
	return WSResponse{Type: "ok", Message: msg.Action}
}

// HandleIntervalsStatus serves the pipeline status as JSON.
func HandleIntervalsStatus(p *Pipeline, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(p.Status()); err != nil {
			log.Warn("json encode error", "error", err)
		}
	}
}
