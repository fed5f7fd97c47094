package http

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/julienschmidt/httprouter"
)

type indexResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
	URL     string `json:"url"`
}

type healthResponse struct {
	Status int `json:"status"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.logger.Info("request for base url")

	s.writeJSON(w, http.StatusOK, indexResponse{
		Status:  http.StatusOK,
		Message: s.opts.serviceName,
		Version: Version,
		URL:     absoluteURL(r, "/counters"),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: http.StatusOK})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	counters, err := s.counters.List(r.Context())
	if err != nil {
		s.writeError(w, r, "", err)
		return
	}

	s.writeJSON(w, http.StatusOK, counters)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name := ps.ByName("name")

	c, err := s.counters.Create(r.Context(), name)
	if err != nil {
		s.writeError(w, r, name, err)
		return
	}

	w.Header().Set("Location", absoluteURL(r, "/counters/"+url.PathEscape(name)))
	s.writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name := ps.ByName("name")

	c, err := s.counters.Read(r.Context(), name)
	if err != nil {
		s.writeError(w, r, name, err)
		return
	}

	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name := ps.ByName("name")

	c, err := s.counters.Update(r.Context(), name)
	if err != nil {
		s.writeError(w, r, name, err)
		return
	}

	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name := ps.ByName("name")

	if err := s.counters.Delete(r.Context(), name); err != nil {
		s.writeError(w, r, name, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeEnvelope(w, r, http.StatusMethodNotAllowed,
		fmt.Sprintf("The method %s is not allowed for the requested URL %s", r.Method, r.URL.Path))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeEnvelope(w, r, http.StatusNotFound,
		fmt.Sprintf("The requested URL %s was not found on the server", r.URL.Path))
}

func (s *Server) handlePanic(w http.ResponseWriter, r *http.Request, rcv interface{}) {
	s.writeEnvelope(w, r, http.StatusInternalServerError, fmt.Sprint(rcv))
}
