package debug

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves metrics, liveness and readiness on a separate listener.
type Server struct {
	server      *http.Server
	pinger      Pinger
	logger      *logrus.Logger
	pingTimeout time.Duration
	stopTimeout time.Duration
}

func New(addr string, gatherer prometheus.Gatherer, pinger Pinger, logger *logrus.Logger) *Server {
	s := &Server{
		pinger:      pinger,
		logger:      logger,
		pingTimeout: 2 * time.Second,
		stopTimeout: 5 * time.Second,
	}

	router := httprouter.New()
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.HandlerFunc(http.MethodGet, "/healthz", s.handleLiveness)
	router.HandlerFunc(http.MethodGet, "/readyz", s.handleReadiness)

	s.server = &http.Server{
		Addr:    addr,
		Handler: router,
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

func (s *Server) Start() error {
	s.logger.Infof("debug server listening on %s", s.server.Addr)
	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "debug server failure")
	}
	return nil
}

func (s *Server) Stop(reason error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Errorf("debug server shutdown: %v", err)
	}
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.pingTimeout)
	defer cancel()

	if err := s.pinger.Ping(ctx); err != nil {
		s.logger.Warnf("readiness check failed: %v", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
