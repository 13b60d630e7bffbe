package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/miretskiy/rrsched/integration"
	"github.com/miretskiy/rrsched/simulator"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		return true
	},
}

// server holds what the HTTP handlers share: the default config for new
// WebSocket sessions, the batch model and the Prometheus gauges.
type server struct {
	config   simulator.SimConfig
	model    *integration.SchedulerModel
	prom     *promMetrics
	registry *prometheus.Registry
	interval time.Duration
	quit     func()
}

func newServer(config simulator.SimConfig, interval time.Duration) (*server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	model, err := integration.NewSchedulerModel("cpu", &integration.SchedulerConfig{
		TimeSlice:      config.TimeSlice,
		CSTPenalty:     config.CSTPenalty,
		AgingThreshold: config.AgingThreshold,
		DispatchPolicy: config.DispatchPolicy.String(),
		MaxTicks:       config.MaxTicks,
		Processes:      config.Processes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler model: %w", err)
	}

	registry := prometheus.NewRegistry()
	prom := newPromMetrics()
	prom.register(registry)

	return &server{
		config:   config,
		model:    model,
		prom:     prom,
		registry: registry,
		interval: interval,
		quit: func() {
			time.Sleep(100 * time.Millisecond)
			log.Println("Server stopped")
			os.Exit(0)
		},
	}, nil
}

func (srv *server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", srv.handleWebSocket)
	r.HandleFunc("/api/simulate", srv.simulate).Methods(http.MethodPost)
	r.HandleFunc("/api/parameters", srv.listParameters).Methods(http.MethodGet)
	r.HandleFunc("/api/parameters", srv.updateParameters).Methods(http.MethodPut)
	r.Handle("/metrics", promhttp.HandlerFor(srv.registry, promhttp.HandlerOpts{}))
	r.HandleFunc("/quitquitquit", srv.quitHandler)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// simulate runs one batch to completion through the scheduler model
func (srv *server) simulate(w http.ResponseWriter, r *http.Request) {
	srv.prom.batchRuns.Inc()

	var req integration.RequestContext
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			srv.prom.batchRunsFailed.Inc()
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}

	result, err := srv.model.HandleRequest(&req)
	if err != nil {
		srv.prom.batchRunsFailed.Inc()
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if result.Status != "ok" {
		srv.prom.batchRunsFailed.Inc()
	}

	log.Printf("Batch simulated: %d processes, final clock %d, status %s",
		len(result.Processes), result.FinalClock, result.Status)
	writeJSON(w, http.StatusOK, result)
}

func (srv *server) listParameters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"config":     srv.model.Config(),
		"parameters": srv.model.MutableParameters(),
	})
}

func (srv *server) updateParameters(w http.ResponseWriter, r *http.Request) {
	var params map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := srv.model.UpdateParameters(params); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	log.Printf("Parameters updated: %v", params)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"config": srv.model.Config(),
	})
}

func (srv *server) quitHandler(w http.ResponseWriter, r *http.Request) {
	log.Println("Shutdown requested via /quitquitquit")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Server shutting down...")

	go srv.quit()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Serve the scheduler simulation over WebSocket and HTTP.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			configPath, _ := cmd.Flags().GetString("config")
			interval, _ := cmd.Flags().GetDuration("interval")

			config := simulator.DefaultConfig()
			if configPath != "" {
				loaded, err := simulator.LoadConfig(configPath)
				if err != nil {
					return fmt.Errorf("error loading config: %w", err)
				}
				config = loaded
				log.Printf("Loaded config: %s", configPath)
			}

			srv, err := newServer(config, interval)
			if err != nil {
				return err
			}

			log.Printf("Server starting on http://localhost%s", addr)
			log.Printf("WebSocket endpoint: ws://localhost%s/ws", addr)
			log.Printf("Metrics endpoint: http://localhost%s/metrics", addr)
			log.Printf("Shutdown endpoint: http://localhost%s/quitquitquit", addr)
			return http.ListenAndServe(addr, srv.router())
		},
	}

	cmd.Flags().String("addr", ":8080", "Listen address")
	cmd.Flags().String("config", "", "Path to JSON or YAML configuration used for new sessions")
	cmd.Flags().Duration("interval", 500*time.Millisecond, "Pause between ticks while a session is running")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}
