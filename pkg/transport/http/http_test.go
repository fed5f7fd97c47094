package http

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samueltorres/hitcounter/pkg/counter"
	"github.com/samueltorres/hitcounter/pkg/memory"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, storage counter.CounterStorage) *Server {
	t.Helper()
	logger := newNullLogger()
	registry := prometheus.NewRegistry()
	counters := counter.NewCounterService(storage, logger, registry, 4)
	return New(counters, logger, registry, WithServiceName("Hit Counter Service"))
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func TestIndex(t *testing.T) {
	s := newTestServer(t, memory.NewStorage())

	rr := do(t, s, http.MethodGet, "http://example.com/")

	assert.Equal(t, http.StatusOK, rr.Code)
	var got indexResponse
	decode(t, rr, &got)
	assert.Equal(t, indexResponse{
		Status:  200,
		Message: "Hit Counter Service",
		Version: "1.0.0",
		URL:     "http://example.com/counters",
	}, got)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, memory.NewStorage())

	rr := do(t, s, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":200}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))
}

func TestCreateCounter(t *testing.T) {
	s := newTestServer(t, memory.NewStorage())

	rr := do(t, s, http.MethodPost, "http://example.com/counters/foo")

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "http://example.com/counters/foo", rr.Header().Get("Location"))
	assert.JSONEq(t, `{"name":"foo","counter":0}`, rr.Body.String())
}

func TestCreateCounter_LocationEscapesName(t *testing.T) {
	testCases := []struct {
		desc     string
		target   string
		name     string
		location string
	}{
		{desc: "question mark", target: "/counters/a%3Fb", name: "a?b", location: "http://example.com/counters/a%3Fb"},
		{desc: "hash", target: "/counters/a%23b", name: "a#b", location: "http://example.com/counters/a%23b"},
		{desc: "space", target: "/counters/a%20b", name: "a b", location: "http://example.com/counters/a%20b"},
		{desc: "percent", target: "/counters/50%25", name: "50%", location: "http://example.com/counters/50%25"},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			s := newTestServer(t, memory.NewStorage())

			rr := do(t, s, http.MethodPost, "http://example.com"+tC.target)
			require.Equal(t, http.StatusCreated, rr.Code)
			location := rr.Header().Get("Location")
			assert.Equal(t, tC.location, location)

			// the location must lead back to the same counter
			rr = do(t, s, http.MethodGet, location)
			require.Equal(t, http.StatusOK, rr.Code)
			var got counter.Counter
			decode(t, rr, &got)
			assert.Equal(t, counter.Counter{Name: tC.name, Counter: 0}, got)
		})
	}
}

func TestCreateDuplicateCounter(t *testing.T) {
	s := newTestServer(t, memory.NewStorage())

	rr := do(t, s, http.MethodPost, "/counters/foo")
	require.Equal(t, http.StatusCreated, rr.Code)
	do(t, s, http.MethodPut, "/counters/foo")

	rr = do(t, s, http.MethodPost, "/counters/foo")
	assert.Equal(t, http.StatusConflict, rr.Code)
	var env errorResponse
	decode(t, rr, &env)
	assert.Equal(t, errorResponse{Status: 409, Error: "Conflict", Message: "Counter foo already exists"}, env)

	rr = do(t, s, http.MethodGet, "/counters/foo")
	assert.JSONEq(t, `{"name":"foo","counter":1}`, rr.Body.String())
}

func TestReadCounter(t *testing.T) {
	s := newTestServer(t, memory.NewStorage())

	rr := do(t, s, http.MethodGet, "/counters/foo")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	var env errorResponse
	decode(t, rr, &env)
	assert.Equal(t, errorResponse{Status: 404, Error: "Not Found", Message: "Counter foo does not exist"}, env)

	do(t, s, http.MethodPost, "/counters/foo")
	rr = do(t, s, http.MethodGet, "/counters/foo")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"name":"foo","counter":0}`, rr.Body.String())
}

func TestUpdateCounter(t *testing.T) {
	s := newTestServer(t, memory.NewStorage())
	do(t, s, http.MethodPost, "/counters/foo")

	rr := do(t, s, http.MethodPut, "/counters/foo")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"name":"foo","counter":1}`, rr.Body.String())

	rr = do(t, s, http.MethodPut, "/counters/foo")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"name":"foo","counter":2}`, rr.Body.String())
}

func TestUpdateMissingCounter(t *testing.T) {
	s := newTestServer(t, memory.NewStorage())

	rr := do(t, s, http.MethodPut, "/counters/foo")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, s, http.MethodGet, "/counters")
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestDeleteCounter(t *testing.T) {
	s := newTestServer(t, memory.NewStorage())
	rr := do(t, s, http.MethodPost, "/counters/foo")
	require.Equal(t, http.StatusCreated, rr.Code)

	// deleting twice returns the same
	for i := 0; i < 2; i++ {
		rr = do(t, s, http.MethodDelete, "/counters/foo")
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Empty(t, rr.Body.String())
	}

	rr = do(t, s, http.MethodGet, "/counters/foo")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListCounters(t *testing.T) {
	s := newTestServer(t, memory.NewStorage())

	rr := do(t, s, http.MethodGet, "/counters")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	for _, name := range []string{"foo", "bar", "baz"} {
		do(t, s, http.MethodPost, "/counters/"+name)
	}

	rr = do(t, s, http.MethodGet, "/counters")
	assert.Equal(t, http.StatusOK, rr.Code)

	var got []counter.Counter
	decode(t, rr, &got)
	sort.Slice(got, func(i, j int) bool { return got[i].Name < got[j].Name })
	assert.Equal(t, []counter.Counter{
		{Name: "bar", Counter: 0},
		{Name: "baz", Counter: 0},
		{Name: "foo", Counter: 0},
	}, got)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, memory.NewStorage())

	rr := do(t, s, http.MethodPost, "/counters")

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Contains(t, rr.Header().Get("Allow"), http.MethodGet)
	var env errorResponse
	decode(t, rr, &env)
	assert.Equal(t, 405, env.Status)
	assert.Equal(t, "Method not Allowed", env.Error)
	assert.NotEmpty(t, env.Message)
}

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t, memory.NewStorage())

	rr := do(t, s, http.MethodGet, "/nothing/here")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	var env errorResponse
	decode(t, rr, &env)
	assert.Equal(t, "Not Found", env.Error)
}

func TestStorageUnavailable(t *testing.T) {
	testCases := []struct {
		desc   string
		method string
		target string
	}{
		{desc: "create", method: http.MethodPost, target: "/counters/foo"},
		{desc: "read", method: http.MethodGet, target: "/counters/foo"},
		{desc: "update", method: http.MethodPut, target: "/counters/foo"},
		{desc: "delete", method: http.MethodDelete, target: "/counters/foo"},
		{desc: "list", method: http.MethodGet, target: "/counters"},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			s := newTestServer(t, downStorage{})

			rr := do(t, s, tC.method, tC.target)

			assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
			var env errorResponse
			decode(t, rr, &env)
			assert.Equal(t, 503, env.Status)
			assert.Equal(t, "Service not available", env.Error)
			assert.Contains(t, env.Message, "connection refused")
		})
	}
}

func TestInternalError(t *testing.T) {
	s := newTestServer(t, brokenStorage{})

	rr := do(t, s, http.MethodGet, "/counters/foo")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var env errorResponse
	decode(t, rr, &env)
	assert.Equal(t, errorResponse{Status: 500, Error: "Internal Server Error", Message: "value is not an integer"}, env)
}

func TestPanicIsInternalError(t *testing.T) {
	s := newTestServer(t, memory.NewStorage())
	s.router.GET("/boom", func(http.ResponseWriter, *http.Request, httprouter.Params) {
		panic("boom")
	})

	rr := do(t, s, http.MethodGet, "/boom")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var env errorResponse
	decode(t, rr, &env)
	assert.Equal(t, errorResponse{Status: 500, Error: "Internal Server Error", Message: "boom"}, env)
}

func TestCounterLifecycle(t *testing.T) {
	s := newTestServer(t, memory.NewStorage())

	steps := []struct {
		method string
		status int
		body   string
	}{
		{http.MethodPost, http.StatusCreated, `{"name":"foo","counter":0}`},
		{http.MethodGet, http.StatusOK, `{"name":"foo","counter":0}`},
		{http.MethodPut, http.StatusOK, `{"name":"foo","counter":1}`},
		{http.MethodDelete, http.StatusNoContent, ``},
		{http.MethodGet, http.StatusNotFound, ``},
	}
	for _, step := range steps {
		rr := do(t, s, step.method, "/counters/foo")
		require.Equal(t, step.status, rr.Code, "%s /counters/foo", step.method)
		if step.body != "" {
			assert.JSONEq(t, step.body, rr.Body.String())
		}
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := newTestServer(t, memory.NewStorage())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-Id"))
}

func TestAbsoluteURL(t *testing.T) {
	testCases := []struct {
		desc    string
		headers map[string]string
		want    string
	}{
		{
			desc: "plain request",
			want: "http://example.com/counters",
		},
		{
			desc:    "behind a tls terminating proxy",
			headers: map[string]string{"X-Forwarded-Proto": "https", "X-Forwarded-Host": "hits.example.org"},
			want:    "https://hits.example.org/counters",
		},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
			for k, v := range tC.headers {
				req.Header.Set(k, v)
			}

			assert.Equal(t, tC.want, absoluteURL(req, "/counters"))
		})
	}
}

func newNullLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = ioutil.Discard

	return logger
}

// downStorage fails every call as if the store could not be reached.
type downStorage struct{}

var errRefused = counter.Unavailable("redis storage failure", errors.New("dial tcp 127.0.0.1:6379: connect: connection refused"))

func (downStorage) Get(context.Context, string) (int64, bool, error)   { return 0, false, errRefused }
func (downStorage) Set(context.Context, string, int64) error           { return errRefused }
func (downStorage) SetNX(context.Context, string, int64) (bool, error) { return false, errRefused }
func (downStorage) Incr(context.Context, string) (int64, error)        { return 0, errRefused }
func (downStorage) Del(context.Context, string) error                  { return errRefused }
func (downStorage) Keys(context.Context) ([]string, error)             { return nil, errRefused }
func (downStorage) Ping(context.Context) error                         { return errRefused }

// brokenStorage returns errors that are not connectivity failures.
type brokenStorage struct{ downStorage }

func (brokenStorage) Get(context.Context, string) (int64, bool, error) {
	return 0, false, errors.New("value is not an integer")
}
