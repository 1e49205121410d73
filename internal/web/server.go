// Package web provides an HTTP status and control server for the plunger-sensor daemon.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/sweeney/plunger-sensor/internal/status"
)

// CommandType names a control request forwarded to the polling loop.
type CommandType string

const (
	CommandCalibrationBegin CommandType = "calibration_begin"
	CommandCalibrationEnd   CommandType = "calibration_end"
)

// Command is a control request for one unit.
type Command struct {
	Type CommandType `json:"command"`
	Unit int         `json:"unit"`
}

// Server serves the status page and control endpoints over HTTP.
// It never touches sensors: commands are handed to the polling loop.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	commands   chan<- Command
}

// New creates a Server that reads state from tracker and sends control
// requests on commands. commands and metrics may be nil to disable control
// and /metrics respectively.
func New(addr string, tracker *status.Tracker, commands chan<- Command, metrics http.Handler) *Server {
	s := &Server{tracker: tracker, commands: commands}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/calibration/begin", s.handleCommand(CommandCalibrationBegin))
	mux.HandleFunc("/calibration/end", s.handleCommand(CommandCalibrationEnd))
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleCommand accepts POST ?unit=N (default 0) and forwards the command
// without blocking. The loop may be busy; a full queue answers 503.
func (s *Server) handleCommand(typ CommandType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.commands == nil {
			http.Error(w, "control disabled", http.StatusServiceUnavailable)
			return
		}

		unit := 0
		if v := r.URL.Query().Get("unit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				http.Error(w, "invalid unit", http.StatusBadRequest)
				return
			}
			unit = n
		}
		if _, ok := s.tracker.Snapshot().Unit(unit); !ok {
			http.Error(w, "unknown unit", http.StatusNotFound)
			return
		}

		cmd := Command{Type: typ, Unit: unit}
		select {
		case s.commands <- cmd:
		default:
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(cmd)
	}
}
