package counter

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Counter is a named hit counter as seen by clients.
type Counter struct {
	Name    string `json:"name"`
	Counter int64  `json:"counter"`
}

type counterMetrics struct {
	operations *prometheus.CounterVec
}

func newCounterMetrics(r prometheus.Registerer) *counterMetrics {
	var m counterMetrics

	m.operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "counter_operations_total",
		Help: "Total counter operations by operation and result",
	}, []string{"operation", "result"})

	r.MustRegister(m.operations)
	return &m
}

func (m *counterMetrics) observe(op string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNonExistingCounter):
		result = "not_found"
	case errors.Is(err, ErrCounterExists):
		result = "conflict"
	case IsUnavailable(err):
		result = "unavailable"
	default:
		result = "error"
	}
	m.operations.WithLabelValues(op, result).Inc()
}

// CounterService manages named counters stored in a CounterStorage.
// It holds no counter state of its own.
type CounterService struct {
	storage         CounterStorage
	logger          *logrus.Logger
	metrics         *counterMetrics
	listConcurrency int
}

// NewCounterService creates a new counter service. listConcurrency bounds the
// number of concurrent value reads performed by List.
func NewCounterService(
	storage CounterStorage,
	logger *logrus.Logger,
	registerer prometheus.Registerer,
	listConcurrency int) *CounterService {

	if listConcurrency < 1 {
		listConcurrency = 1
	}

	return &CounterService{
		storage:         storage,
		logger:          logger,
		metrics:         newCounterMetrics(registerer),
		listConcurrency: listConcurrency,
	}
}

// Create stores a new counter with value 0. It fails with ErrCounterExists
// when the name is already present.
func (cs *CounterService) Create(ctx context.Context, name string) (c Counter, err error) {
	defer func() { cs.metrics.observe("create", err) }()
	cs.logger.Infof("request to create counter: %s", name)

	if name == "" {
		return Counter{}, ErrInvalidName
	}

	created, err := cs.storage.SetNX(ctx, name, 0)
	if err != nil {
		return Counter{}, err
	}
	if !created {
		return Counter{}, ErrCounterExists
	}

	return Counter{Name: name, Counter: 0}, nil
}

// Read returns the current value of a counter.
func (cs *CounterService) Read(ctx context.Context, name string) (c Counter, err error) {
	defer func() { cs.metrics.observe("read", err) }()
	cs.logger.Infof("request to read counter: %s", name)

	if name == "" {
		return Counter{}, ErrInvalidName
	}

	value, ok, err := cs.storage.Get(ctx, name)
	if err != nil {
		return Counter{}, err
	}
	if !ok {
		return Counter{}, ErrNonExistingCounter
	}

	return Counter{Name: name, Counter: value}, nil
}

// Update increments an existing counter by one.
func (cs *CounterService) Update(ctx context.Context, name string) (c Counter, err error) {
	defer func() { cs.metrics.observe("update", err) }()
	cs.logger.Infof("request to update counter: %s", name)

	if name == "" {
		return Counter{}, ErrInvalidName
	}

	_, ok, err := cs.storage.Get(ctx, name)
	if err != nil {
		return Counter{}, err
	}
	if !ok {
		return Counter{}, ErrNonExistingCounter
	}

	// the store refuses to increment a key deleted since the check above
	value, err := cs.storage.Incr(ctx, name)
	if err != nil {
		return Counter{}, err
	}

	return Counter{Name: name, Counter: value}, nil
}

// Delete removes a counter. Deleting an absent counter is not an error.
func (cs *CounterService) Delete(ctx context.Context, name string) (err error) {
	defer func() { cs.metrics.observe("delete", err) }()
	cs.logger.Infof("request to delete counter: %s", name)

	if name == "" {
		return ErrInvalidName
	}

	return cs.storage.Del(ctx, name)
}

// List returns every stored counter in no particular order.
func (cs *CounterService) List(ctx context.Context) (counters []Counter, err error) {
	defer func() { cs.metrics.observe("list", err) }()
	cs.logger.Info("request to list all counters")

	names, err := cs.storage.Keys(ctx)
	if err != nil {
		return nil, err
	}

	values := make([]int64, len(names))
	found := make([]bool, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cs.listConcurrency)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			v, ok, err := cs.storage.Get(gctx, name)
			if err != nil {
				return err
			}
			values[i], found[i] = v, ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	counters = make([]Counter, 0, len(names))
	for i, name := range names {
		// deleted between enumeration and read
		if !found[i] {
			continue
		}
		counters = append(counters, Counter{Name: name, Counter: values[i]})
	}

	return counters, nil
}

// Ping reports whether the backing store is reachable.
func (cs *CounterService) Ping(ctx context.Context) error {
	return cs.storage.Ping(ctx)
}
