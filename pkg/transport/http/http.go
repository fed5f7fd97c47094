package http

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samueltorres/hitcounter/pkg/counter"
	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni"
)

// Version is reported by the index endpoint.
const Version = "1.0.0"

type options struct {
	listen          string
	serviceName     string
	shutdownTimeout time.Duration
}

type Option func(o *options)

func WithListen(addr string) Option {
	return func(o *options) {
		o.listen = addr
	}
}

func WithServiceName(name string) Option {
	return func(o *options) {
		o.serviceName = name
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = d
	}
}

// Server exposes the counter service over HTTP.
type Server struct {
	counters *counter.CounterService
	logger   *logrus.Logger
	metrics  *metricsMiddleware
	router   *httprouter.Router
	handler  http.Handler
	server   *http.Server
	opts     options
}

func New(
	counters *counter.CounterService,
	logger *logrus.Logger,
	registerer prometheus.Registerer,
	opts ...Option) *Server {

	o := options{
		listen:          ":8080",
		serviceName:     "Hit Counter Service",
		shutdownTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		counters: counters,
		logger:   logger,
		metrics:  newMetricsMiddleware(registerer),
		router:   httprouter.New(),
		opts:     o,
	}
	s.registerRoutes()

	n := negroni.New(
		negroni.HandlerFunc(requestID),
		negroni.HandlerFunc(s.accessLog),
	)
	n.UseHandler(s.router)
	s.handler = n

	s.server = &http.Server{
		Addr:         o.listen,
		Handler:      s.handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start blocks serving requests until Stop is called.
func (s *Server) Start() error {
	s.logger.Infof("http server listening on %s", s.opts.listen)
	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failure")
	}
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(reason error) {
	s.logger.Infof("stopping http server: %v", reason)

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Errorf("http server shutdown: %v", err)
	}
}

func (s *Server) registerRoutes() {
	s.router.GET("/", s.metrics.Handler("index", s.handleIndex))
	s.router.GET("/health", s.metrics.Handler("health", s.handleHealth))
	s.router.GET("/counters", s.metrics.Handler("list", s.handleList))
	s.router.POST("/counters/:name", s.metrics.Handler("create", s.handleCreate))
	s.router.GET("/counters/:name", s.metrics.Handler("read", s.handleRead))
	s.router.PUT("/counters/:name", s.metrics.Handler("update", s.handleUpdate))
	s.router.DELETE("/counters/:name", s.metrics.Handler("delete", s.handleDelete))

	s.router.MethodNotAllowed = http.HandlerFunc(s.handleMethodNotAllowed)
	s.router.NotFound = http.HandlerFunc(s.handleNotFound)
	s.router.PanicHandler = s.handlePanic
}
