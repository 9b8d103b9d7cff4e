// Package web provides the local HTTP dashboard for the tank monitor.
// It only reads status; relay commands are handed to the control loop.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sweeney/tank-monitor/internal/logic"
	"github.com/sweeney/tank-monitor/internal/status"
)

// commandTimeout bounds how long POST /relay waits for the loop to apply a
// command. The loop drains commands between ticks.
const commandTimeout = 15 * time.Second

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	commands   chan<- logic.RelayCommand
}

// New creates a Server that reads state from tracker. gatherer backs
// /metrics and may be nil. commands receives manual relay requests; nil
// disables POST /relay.
func New(addr string, tracker *status.Tracker, gatherer prometheus.Gatherer, commands chan<- logic.RelayCommand) *Server {
	s := &Server{tracker: tracker, commands: commands}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("POST /relay", s.handleRelay)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's routes. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
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
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.tracker.Snapshot())
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

type relayRequest struct {
	Channel string `json:"channel"`
	State   string `json:"state"`
}

type relayResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// handleRelay accepts JSON {"channel":"override","state":"ON"} or the same
// fields as a form post from the dashboard.
func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	if s.commands == nil {
		writeRelay(w, http.StatusNotImplemented, errors.New("relay control disabled"))
		return
	}

	var req relayRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
			writeRelay(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
			return
		}
	} else {
		req.Channel = r.FormValue("channel")
		req.State = r.FormValue("state")
	}

	cmd, err := parseCommand(req)
	if err != nil {
		writeRelay(w, http.StatusBadRequest, err)
		return
	}

	select {
	case s.commands <- cmd:
	default:
		writeRelay(w, http.StatusServiceUnavailable, errors.New("command queue full"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	select {
	case err := <-cmd.Result:
		if err != nil {
			writeRelay(w, http.StatusBadGateway, err)
			return
		}
	case <-ctx.Done():
		writeRelay(w, http.StatusGatewayTimeout, errors.New("control loop did not respond"))
		return
	}

	if r.FormValue("redirect") != "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeRelay(w, http.StatusOK, nil)
}

func parseCommand(req relayRequest) (logic.RelayCommand, error) {
	ch := logic.Channel(strings.ToLower(strings.TrimSpace(req.Channel)))
	if ch != logic.ChannelBypass && ch != logic.ChannelOverride {
		return logic.RelayCommand{}, fmt.Errorf("unknown channel %q", req.Channel)
	}
	st := logic.State(strings.ToUpper(strings.TrimSpace(req.State)))
	if st != logic.StateOn && st != logic.StateOff {
		return logic.RelayCommand{}, fmt.Errorf("unknown state %q", req.State)
	}
	return logic.RelayCommand{Channel: ch, State: st, Result: make(chan error, 1)}, nil
}

func writeRelay(w http.ResponseWriter, code int, err error) {
	resp := relayResponse{OK: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}
