package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"duewatch/internal/oauth"
	"duewatch/internal/scheduler"
	"duewatch/pkg/logging"
)

// Server is the HTTP listener for the OAuth callback and health checks.
type Server struct {
	server    *http.Server
	listener  net.Listener
	scheduler *scheduler.Scheduler
	started   time.Time
}

// NewServer builds the handler tree. completer may be nil when OAuth is
// disabled, in which case no callback route is mounted. sched may be nil.
func NewServer(callbackPath string, completer oauth.CallbackCompleter, sched *scheduler.Scheduler) *Server {
	s := &Server{scheduler: sched, started: time.Now()}

	mux := http.NewServeMux()
	if completer != nil {
		mux.Handle(callbackPath, oauth.NewHandler(completer))
	}
	mux.HandleFunc("/healthz", s.handleHealth)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Listen binds addr. It returns the bound address, which differs from addr
// when port 0 was requested.
func (s *Server) Listen(addr string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	return listener.Addr().String(), nil
}

// Serve blocks serving requests until Shutdown is called.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}
	logging.Info("Server", "Listening on %s", s.listener.Addr())
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status     string        `json:"status"`
	Uptime     string        `json:"uptime"`
	Users      int           `json:"users,omitempty"`
	LastSweep  *sweepSummary `json:"lastSweep,omitempty"`
	Scheduling bool          `json:"scheduling"`
}

type sweepSummary struct {
	ID       string    `json:"id"`
	Finished time.Time `json:"finished"`
	Notified int       `json:"notified"`
	Failed   int       `json:"failed"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	if s.scheduler != nil {
		resp.Users = s.scheduler.Registry().Len()
		resp.Scheduling = s.scheduler.IsRunning()
		if report := s.scheduler.LastReport(); report != nil {
			resp.LastSweep = &sweepSummary{
				ID:       report.ID,
				Finished: report.FinishedAt,
				Notified: report.Count(scheduler.OutcomeNotified),
				Failed:   report.Count(scheduler.OutcomeFetchFailed) + report.Count(scheduler.OutcomeDeliveryFailed),
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(resp)
}
