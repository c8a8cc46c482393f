// Package server exposes a running recorder over HTTP for monitoring.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/audiolibrelab/vidcapture/internal/config"
	"github.com/audiolibrelab/vidcapture/internal/metrics"
	"github.com/audiolibrelab/vidcapture/internal/video"
)

// StatusSource is what the status endpoint reports on.
type StatusSource interface {
	Status() (video.Status, error)
}

// Server represents the monitoring endpoint of one recording
type Server struct {
	cfg      *config.Config
	recorder StatusSource
	metrics  *metrics.Pipeline
	srv      *http.Server
	ln       net.Listener
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	Status  string              `json:"status"`
	Error   string              `json:"error,omitempty"`
	Profile string              `json:"profile,omitempty"`
	Backend string              `json:"backend"`
	Video   config.VideoConfig  `json:"video"`
	Output  config.OutputConfig `json:"output"`
}

func New(cfg *config.Config, rec StatusSource, m *metrics.Pipeline) *Server {
	s := &Server{cfg: cfg, recorder: rec, metrics: m}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return s
}

// Handler returns the routes without starting a listener.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.ln = ln

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Monitoring server failed", "error", err)
		}
	}()
	slog.Info("Serving status and metrics", "address", ln.Addr().String())
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Close shuts the server down, waiting up to timeout for open requests.
func (s *Server) Close(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down monitoring server: %w", err)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "Method not allowed",
		})
		return
	}

	status, err := s.recorder.Status()
	response := StatusResponse{
		Status:  string(status),
		Profile: s.cfg.Profile,
		Backend: s.cfg.Backend,
		Video:   s.cfg.Video,
		Output:  s.cfg.Output,
	}
	if err != nil {
		response.Error = err.Error()
	}
	json.NewEncoder(w).Encode(response)
}
