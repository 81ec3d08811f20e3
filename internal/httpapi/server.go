package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/MimeLyc/clipreel/internal/artifact"
	"github.com/MimeLyc/clipreel/internal/config"
	"github.com/MimeLyc/clipreel/internal/jobs"
	"github.com/MimeLyc/clipreel/internal/persistence"
)

// Enqueuer queues compile jobs by target.
type Enqueuer interface {
	Enqueue(source string, target config.Target, amount int, timeFrame string) (*jobs.CompileJob, bool, error)
}

// RunLister reads the run ledger.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]persistence.RunRecord, error)
}

// Server is the control API of scheduled mode.
type Server struct {
	queue    *jobs.Queue
	enqueuer Enqueuer
	runs     RunLister
	workdir  *artifact.Store

	streamInterval time.Duration

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithRuns(runs RunLister) Option {
	return func(s *Server) {
		s.runs = runs
	}
}

func WithWorkdir(store *artifact.Store) Option {
	return func(s *Server) {
		s.workdir = store
	}
}

func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		s.streamInterval = d
	}
}

func NewServer(queue *jobs.Queue, enqueuer Enqueuer, opts ...Option) *Server {
	s := &Server{
		queue:          queue,
		enqueuer:       enqueuer,
		streamInterval: time.Second,
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	s.server = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe blocks until Shutdown is called, then returns
// http.ErrServerClosed.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.server.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/jobs/stream", s.handleJobStream)
	s.mux.HandleFunc("/api/jobs/", s.handleJob)
	s.mux.HandleFunc("/api/runs", s.handleRuns)
	s.mux.HandleFunc("/api/workdir", s.handleWorkdir)
}
