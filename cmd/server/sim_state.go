package main

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/miretskiy/rrsched/simulator"
)

// Client message types
type ClientMessage struct {
	Type   string               `json:"type"`
	Config *simulator.SimConfig `json:"config,omitempty"`
}

// Server message types
type ServerMessage struct {
	Type    string                 `json:"type"`
	Running *bool                  `json:"running,omitempty"`
	Config  *simulator.SimConfig   `json:"config,omitempty"`
	Metrics *simulator.Metrics     `json:"metrics,omitempty"`
	State   map[string]interface{} `json:"state,omitempty"`
	Trace   []simulator.TraceEvent `json:"trace,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// simState manages the simulation state and UI pacing
type simState struct {
	sim       *simulator.Simulator
	running   bool
	paused    bool
	traceSent int // Trace events already delivered to the client
	mu        sync.Mutex
	stopCh    chan struct{}
}

func newSimState(config simulator.SimConfig) (*simState, error) {
	sim, err := simulator.NewSimulator(config)
	if err != nil {
		return nil, err
	}
	sim.LogEvent = func(msg string) {
		log.Printf("[SIM] %s", msg)
	}

	return &simState{
		sim:     sim,
		running: false,
		paused:  false,
		stopCh:  make(chan struct{}),
	}, nil
}

// start begins the simulation (sets running flag)
func (s *simState) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.paused = false
}

// pause pauses the simulation
func (s *simState) pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// reset rebuilds the simulation from its current config
func (s *simState) reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.paused = false
	s.traceSent = 0
	return s.sim.Reset()
}

// updateConfig replaces the simulation with a fresh one built from config.
// The clock restarts at zero; the old run is discarded.
func (s *simState) updateConfig(config simulator.SimConfig) error {
	sim, err := simulator.NewSimulator(config)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sim.LogEvent = s.sim.LogEvent
	s.sim = sim
	s.traceSent = 0
	return nil
}

// isRunning returns true if simulation is running and not paused
func (s *simState) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && !s.paused
}

// getConfig returns the current simulator configuration
func (s *simState) getConfig() simulator.SimConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sim.Config()
}

// step advances the simulation by one tick. With force it steps even when not
// running. It returns the events the client has not seen yet and whether the
// run is now over.
func (s *simState) step(force bool) ([]simulator.TraceEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !force && (!s.running || s.paused) {
		return nil, s.sim.IsDone(), nil
	}

	err := s.sim.Step()
	events := s.sim.TraceSince(s.traceSent)
	s.traceSent += len(events)

	done := s.sim.IsDone()
	if done || err != nil {
		s.running = false
	}
	return events, done, err
}

// metrics returns current metrics
func (s *simState) metrics() *simulator.Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sim.Metrics()
}

// state returns current state
func (s *simState) state() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sim.State()
}

// stop signals the UI loop to stop
func (s *simState) stop() {
	close(s.stopCh)
}

// publishStep runs one tick and sends the resulting trace, metrics and state.
// It returns false once the connection is unusable.
func (srv *server) publishStep(conn *safeConn, state *simState, force bool) bool {
	events, done, err := state.step(force)

	if len(events) > 0 {
		if err := conn.WriteJSON(ServerMessage{Type: "trace", Trace: events}); err != nil {
			log.Printf("Error sending trace: %v", err)
			return false
		}
	}

	metrics := state.metrics()
	srv.prom.update(metrics)
	if err := conn.WriteJSON(ServerMessage{Type: "metrics", Metrics: metrics}); err != nil {
		log.Printf("Error sending metrics: %v", err)
		return false
	}

	if err := conn.WriteJSON(ServerMessage{Type: "state", State: state.state()}); err != nil {
		log.Printf("Error sending state: %v", err)
		return false
	}

	if err != nil {
		if err := conn.WriteJSON(ServerMessage{Type: "error", Error: err.Error()}); err != nil {
			log.Printf("Error sending error: %v", err)
			return false
		}
		return true
	}

	if done && len(events) > 0 {
		running := false
		if err := conn.WriteJSON(ServerMessage{Type: "done", Running: &running, Metrics: metrics}); err != nil {
			log.Printf("Error sending done: %v", err)
			return false
		}
	}
	return true
}

// uiUpdateLoop periodically calls Step() and sends updates to the client
// This runs in its own goroutine and controls UI pacing
func (srv *server) uiUpdateLoop(conn *safeConn, state *simState) {
	ticker := time.NewTicker(srv.interval)
	defer ticker.Stop()

	for {
		select {
		case <-state.stopCh:
			log.Println("UI update loop stopping")
			return

		case <-ticker.C:
			if state.isRunning() {
				if !srv.publishStep(conn, state, false) {
					return
				}
			}
		}
	}
}

// safeConn wraps a WebSocket connection with a mutex to prevent concurrent writes
type safeConn struct {
	*websocket.Conn
	writeMu sync.Mutex
}

func (sc *safeConn) WriteJSON(v interface{}) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	return sc.Conn.WriteJSON(v)
}

func (srv *server) sendStatus(conn *safeConn, state *simState) {
	running := state.isRunning()
	cfg := state.getConfig()
	statusMsg := ServerMessage{
		Type:    "status",
		Running: &running,
		Config:  &cfg,
	}
	if err := conn.WriteJSON(statusMsg); err != nil {
		log.Printf("Error sending status: %v", err)
	}
}

func (srv *server) sendError(conn *safeConn, err error) {
	if werr := conn.WriteJSON(ServerMessage{Type: "error", Error: err.Error()}); werr != nil {
		log.Printf("Error sending error: %v", werr)
	}
}

func (srv *server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading connection: %v", err)
		return
	}
	defer conn.Close()

	// Wrap connection with mutex for safe concurrent writes
	safeConn := &safeConn{Conn: conn}

	log.Println("Client connected")

	state, err := newSimState(srv.config)
	if err != nil {
		log.Printf("Error creating simulator: %v", err)
		return
	}

	// Send initial status
	srv.sendStatus(safeConn, state)

	// Start UI update loop
	go srv.uiUpdateLoop(safeConn, state)

	// Handle messages from client
	for {
		var msg ClientMessage
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Error reading message: %v", err)
			}
			break
		}

		log.Printf("Received command: %s", msg.Type)

		switch msg.Type {
		case "start":
			state.start()
			log.Println("Simulator started")
			srv.sendStatus(safeConn, state)

		case "pause":
			state.pause()
			log.Println("Simulator paused")
			srv.sendStatus(safeConn, state)

		case "step":
			if !srv.publishStep(safeConn, state, true) {
				log.Println("Client connection lost")
			}

		case "reset":
			if err := state.reset(); err != nil {
				log.Printf("Error resetting simulator: %v", err)
				srv.sendError(safeConn, err)
				continue
			}
			log.Println("Simulator reset")
			srv.sendStatus(safeConn, state)

		case "config_update":
			if msg.Config == nil {
				srv.sendError(safeConn, fmt.Errorf("config_update without config"))
				continue
			}
			if err := state.updateConfig(*msg.Config); err != nil {
				log.Printf("Error updating config: %v", err)
				srv.sendError(safeConn, err)
				continue
			}
			log.Printf("Config updated: %+v", msg.Config)
			srv.sendStatus(safeConn, state)

		default:
			srv.sendError(safeConn, fmt.Errorf("unknown command %q", msg.Type))
		}
	}

	// Clean up
	state.stop()
	log.Println("Client disconnected")
}
