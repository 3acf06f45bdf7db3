package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kwv/ledpointer/strip"
)

const (
	wsPushInterval = 100 * time.Millisecond
	wsWriteTimeout = time.Second
	stripCellSize  = 8
)

// serviceState is what the HTTP endpoints read from the running service
type serviceState struct {
	Config      *strip.Config
	Catalog     *strip.Catalog
	Store       *strip.Store
	Agents      []*strip.Agent
	Transmitter *strip.Transmitter
	Calibration strip.CalibrationStatus
}

// stateResponse is the body of /state and of every /ws message
type stateResponse struct {
	Timestamp   time.Time               `json:"timestamp"`
	NumLEDs     int                     `json:"numLeds"`
	Lit         map[int]strip.LedState  `json:"lit"`
	Controllers []strip.AgentStatus     `json:"controllers"`
	Transmit    strip.TransmitStats     `json:"transmit"`
	Calibration strip.CalibrationStatus `json:"calibration"`
}

func (s *serviceState) snapshot() stateResponse {
	resp := stateResponse{
		Timestamp:   time.Now(),
		NumLEDs:     s.Config.Device.NumLEDs,
		Lit:         s.Store.Snapshot(),
		Controllers: s.agentStatuses(),
		Calibration: s.Calibration,
	}
	if s.Transmitter != nil {
		resp.Transmit = s.Transmitter.Stats()
	}
	return resp
}

func (s *serviceState) agentStatuses() []strip.AgentStatus {
	statuses := make([]strip.AgentStatus, 0, len(s.Agents))
	for _, a := range s.Agents {
		statuses = append(statuses, a.Status())
	}
	return statuses
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// status page may be served from another host on the LAN
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(state *serviceState) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		tracking := 0
		for _, st := range state.agentStatuses() {
			if st.Connected {
				tracking++
			}
		}
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status      string    `json:"status"`
			Timestamp   time.Time `json:"timestamp"`
			Mapped      int       `json:"mapped"`
			Controllers int       `json:"controllers"`
			Tracking    int       `json:"tracking"`
		}{
			Status:      "ok",
			Timestamp:   time.Now(),
			Mapped:      state.Catalog.Len(),
			Controllers: len(state.Agents),
			Tracking:    tracking,
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(state.snapshot()); err != nil {
			log.Printf("Error encoding state: %v", err)
		}
	})

	// Top-down layout with lit LEDs and controller rays
	mux.HandleFunc("/strip.svg", func(w http.ResponseWriter, r *http.Request) {
		if state.Catalog.Len() == 0 {
			http.Error(w, "No LED mapping available", http.StatusServiceUnavailable)
			return
		}
		renderer := strip.NewLayoutRenderer(state.Catalog)
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderToSVG(w, state.Store.Snapshot(), state.agentStatuses()); err != nil {
			log.Printf("Error rendering layout SVG: %v", err)
		}
	})

	// Strip bar by default, the layout with ?view=layout
	mux.HandleFunc("/strip.png", func(w http.ResponseWriter, r *http.Request) {
		snapshot := state.Store.Snapshot()
		if r.URL.Query().Get("view") == "layout" {
			if state.Catalog.Len() == 0 {
				http.Error(w, "No LED mapping available", http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("Cache-Control", "no-cache")
			if err := strip.NewLayoutRenderer(state.Catalog).RenderToPNG(w, snapshot, state.agentStatuses()); err != nil {
				log.Printf("Error rendering layout PNG: %v", err)
			}
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := strip.WriteStripBarPNG(w, snapshot, state.Config.Device.NumLEDs, stripCellSize); err != nil {
			log.Printf("Error encoding strip PNG: %v", err)
		}
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveStateStream(w, r, state)
	})

	return mux
}

// serveStateStream pushes the state to one websocket client until it
// goes away or the request context ends
func serveStateStream(w http.ResponseWriter, r *http.Request, state *serviceState) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[HTTP] /ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	log.Printf("[HTTP] /ws client connected from %s", r.RemoteAddr)

	// Read pump: the client sends nothing we need, but reading is how a close is noticed
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPushInterval)
	defer ticker.Stop()

	for {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return
		}
		if err := conn.WriteJSON(state.snapshot()); err != nil {
			log.Printf("[HTTP] /ws client %s gone: %v", r.RemoteAddr, err)
			return
		}

		select {
		case <-closed:
			log.Printf("[HTTP] /ws client %s disconnected", r.RemoteAddr)
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(wsWriteTimeout))
			return
		case <-ticker.C:
		}
	}
}
