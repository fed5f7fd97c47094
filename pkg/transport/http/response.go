package http

import (
	"fmt"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/samueltorres/hitcounter/pkg/counter"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// errorResponse is the envelope shared by every non-2xx response.
type errorResponse struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

var statusTitles = map[int]string{
	http.StatusBadRequest:          "Bad Request",
	http.StatusNotFound:            "Not Found",
	http.StatusMethodNotAllowed:    "Method not Allowed",
	http.StatusConflict:            "Conflict",
	http.StatusInternalServerError: "Internal Server Error",
	http.StatusServiceUnavailable:  "Service not available",
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorf("could not encode response: %v", err)
	}
}

// writeError maps a counter service error to its status code and envelope.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, name string, err error) {
	switch {
	case errors.Is(err, counter.ErrNonExistingCounter):
		s.writeEnvelope(w, r, http.StatusNotFound, fmt.Sprintf("Counter %s does not exist", name))
	case errors.Is(err, counter.ErrCounterExists):
		s.writeEnvelope(w, r, http.StatusConflict, fmt.Sprintf("Counter %s already exists", name))
	case errors.Is(err, counter.ErrInvalidName):
		s.writeEnvelope(w, r, http.StatusBadRequest, err.Error())
	case counter.IsUnavailable(err):
		s.writeEnvelope(w, r, http.StatusServiceUnavailable, err.Error())
	default:
		s.writeEnvelope(w, r, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeEnvelope(w http.ResponseWriter, r *http.Request, status int, message string) {
	entry := s.logger.WithField("request_id", requestIDFrom(r.Context()))
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		entry.Error(message)
	} else {
		entry.Warn(message)
	}

	title, ok := statusTitles[status]
	if !ok {
		title = http.StatusText(status)
	}

	s.writeJSON(w, status, errorResponse{
		Status:  status,
		Error:   title,
		Message: message,
	})
}

// absoluteURL resolves path against the scheme and host the client used.
func absoluteURL(r *http.Request, path string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}

	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}

	return scheme + "://" + host + path
}
