// Package status serves the keep-alive endpoints: GET / (plain text) and
// GET /stats (JSON). Optionally mounts net/http/pprof.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"purrbot/internal/runtime/supervisor"
	logx "purrbot/pkg/logx"
)

// Stats is the /stats payload. Uptime is in seconds. The detail fields are
// omitted when zero.
type Stats struct {
	Servers      int     `json:"servers"`
	UsersTracked int     `json:"users_tracked"`
	ActiveUsers  int     `json:"active_users"`
	Uptime       float64 `json:"uptime"`

	NextDaily time.Time `json:"next_daily,omitzero"`
	Jobs      []Job     `json:"jobs,omitempty"`
	Runtime   *Runtime  `json:"runtime,omitempty"`
}

// Job is one scheduled broadcast.
type Job struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next,omitzero"`
	Prev time.Time `json:"prev,omitzero"`
}

// Runtime is the process-side view: supervised goroutines and sink drops.
type Runtime struct {
	Goroutines    int64              `json:"goroutines"`
	Started       uint64             `json:"started"`
	Tasks         []supervisor.Stats `json:"tasks,omitempty"`
	LogDropped    uint64             `json:"log_dropped"`
	EventsDropped uint64             `json:"events_dropped"`
}

// Source reports the live numbers. Implementations must be read-only.
type Source interface {
	Stats() Stats
}

type SourceFunc func() Stats

func (f SourceFunc) Stats() Stats { return f() }

type Config struct {
	Enabled bool
	Addr    string
	Pprof   bool
}

type Server struct {
	src Source
	log logx.Logger

	mu   sync.Mutex
	cfg  Config
	srv  *http.Server
	ln   net.Listener
	addr string
}

func New(src Source, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{src: src, log: log.With(logx.String("comp", "status"))}
}

// Handler builds the mux. Exposed for tests.
func (s *Server) Handler(withPprof bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /stats", s.handleStats)
	if withPprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	st := s.src.Stats()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "🐾 Meowster Bot is alive! 😺\nUptime: %.1f seconds\nServers: %d", st.Uptime, st.Servers)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.src.Stats())
}

// Apply starts, stops or rebinds the listener to match cfg.
func (s *Server) Apply(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !cfg.Enabled {
		s.stopLocked(ctx)
		s.cfg = cfg
		return nil
	}
	if s.srv != nil && s.cfg == cfg {
		return nil
	}
	s.stopLocked(ctx)
	s.cfg = cfg
	return s.startLocked(cfg)
}

func (s *Server) startLocked(cfg Config) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("status listen %s: %w", cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(cfg.Pprof),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.srv, s.ln, s.addr = srv, ln, ln.Addr().String()

	addr := s.addr
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("status server error", logx.String("addr", addr), logx.Err(err))
		}
	}()
	s.log.Info("status server listening", logx.String("addr", addr), logx.Bool("pprof", cfg.Pprof))
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Server) stopLocked(ctx context.Context) {
	if s.srv == nil {
		return
	}
	srv, addr := s.srv, s.addr
	s.srv, s.ln, s.addr = nil, nil, ""

	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("status shutdown error", logx.String("addr", addr), logx.Err(err))
	}
	s.log.Info("status server stopped", logx.String("addr", addr))
}

// Addr is the bound address, or "" when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
