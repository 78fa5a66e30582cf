// Package server is the public HTTP listener: liveness, health, webhook
// intake and a websocket stream of registry events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"pingkeeper/internal/eventbus"
	rtsup "pingkeeper/internal/runtime/supervisor"
	logx "pingkeeper/pkg/logx"
)

type Config struct {
	Listen string
	// WebhookPath is the secret segment of POST /webhook/<path>. Empty
	// disables the webhook routes (polling mode).
	WebhookPath string
	// PprofToken enables /debug/pprof/ for requests carrying it.
	PprofToken string
}

// Health is the /healthz payload.
type Health struct {
	Status      string                    `json:"status"`
	Mode        string                    `json:"mode"`
	Tasks       int                       `json:"tasks"`
	Uptime      string                    `json:"uptime"`
	Supervisors map[string]rtsup.Counters `json:"supervisors,omitempty"`
}

type Server struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	webhook http.Handler
	setup   func(ctx context.Context) (string, error)
	health  func() Health

	mu      sync.Mutex
	srv     *http.Server
	addr    string
	closing chan struct{}
}

type Option func(*Server)

// WithWebhook mounts h at POST /webhook/<path>; setup backs GET /setup and
// returns a printable description of what was registered.
func WithWebhook(h http.Handler, setup func(ctx context.Context) (string, error)) Option {
	return func(s *Server) {
		s.webhook = h
		s.setup = setup
	}
}

func WithHealth(fn func() Health) Option { return func(s *Server) { s.health = fn } }

func WithBus(b eventbus.Bus) Option { return func(s *Server) { s.bus = b } }

func WithLogger(l logx.Logger) Option { return func(s *Server) { s.log = l } }

func New(cfg Config, opts ...Option) *Server {
	s := &Server{cfg: cfg, log: logx.Nop(), closing: make(chan struct{})}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With(logx.String("comp", "http"))
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.bus != nil {
		mux.HandleFunc("GET /ws/events", s.handleEventsWS)
	}
	if s.webhook != nil && s.cfg.WebhookPath != "" {
		mux.Handle("POST /webhook/"+strings.Trim(s.cfg.WebhookPath, "/"), s.webhook)
	}
	if s.setup != nil {
		mux.HandleFunc("GET /setup", s.handleSetup)
	}
	s.mountPprof(mux, s.cfg.PprofToken)
	return mux
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.srv = srv
	s.addr = ln.Addr().String()
	addr := s.addr

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", logx.String("addr", addr), logx.Err(err))
		}
	}()
	s.log.Info("http listening", logx.String("addr", addr))
	return nil
}

// Addr reports the bound address while running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop shuts the listener down and ends websocket streams.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.addr = ""
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	select {
	case <-s.closing:
	default:
		close(s.closing)
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("http stopped")
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("pingkeeper is running\n"))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h := Health{Status: "ok"}
	if s.health != nil {
		h = s.health()
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()
	desc, err := s.setup(ctx)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err != nil {
		s.log.Warn("webhook setup failed", logx.Err(err))
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("webhook setup failed: " + err.Error() + "\n"))
		return
	}
	_, _ = w.Write([]byte("webhook registered: " + desc + "\n"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
