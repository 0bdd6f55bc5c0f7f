package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/geo-cascade-service/internal/cascade"
	"github.com/couchcryptid/geo-cascade-service/internal/domain"
	"github.com/couchcryptid/geo-cascade-service/internal/session"
)

// SessionStore is the registry the API manages sessions through.
type SessionStore interface {
	Create() *cascade.Session
	Get(id string) (*cascade.Session, error)
	Delete(id string) error
}

// Server exposes health, readiness, metrics, and the session JSON API.
type Server struct {
	httpServer *http.Server
	sessions   SessionStore
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and
// /api/sessions routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, sessions SessionStore, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		sessions: sessions,
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/sessions", s.handleCreate)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGet)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDelete)
	mux.HandleFunc("PUT /api/sessions/{id}/selection/{level}", s.handleSelect)
	mux.HandleFunc("POST /api/sessions/{id}/marker", s.handleMarker)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type selectRequest struct {
	Value string `json:"value"`
}

type markerRequest struct {
	Lon   *float64 `json:"lon"`
	Lat   *float64 `json:"lat"`
	Color string   `json:"color"`
}

type markerResponse struct {
	cascade.MarkerResult
	Error string       `json:"error,omitempty"`
	State cascade.View `json:"state"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	if waitRequested(r) {
		sess.Wait()
	}
	writeJSON(w, http.StatusCreated, sess.View())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if waitRequested(r) {
		sess.Wait()
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	level, err := domain.ParseLevel(r.PathValue("level"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}

	if err := sess.Select(r.Context(), level, req.Value); err != nil {
		s.logger.Warn("select failed", "session_id", sess.ID, "level", level.String(), "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	if waitRequested(r) {
		sess.Wait()
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleMarker(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req markerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Lon == nil || req.Lat == nil {
		writeError(w, http.StatusBadRequest, errors.New("body must carry numeric lon and lat"))
		return
	}

	res, err := sess.PlaceMarker(r.Context(), domain.Coordinates{Lon: *req.Lon, Lat: *req.Lat}, req.Color)
	if waitRequested(r) {
		sess.Wait()
	}
	resp := markerResponse{MarkerResult: res, State: sess.View()}
	if err != nil {
		resp.Error = userMessage(err)
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*cascade.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	return sess, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, domain.ErrResolutionNotFound),
		errors.Is(err, domain.ErrHierarchyNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidLevel),
		errors.Is(err, domain.ErrParentUnset),
		errors.Is(err, domain.ErrInvalidCoordinates):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStaleFetch):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTransport):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// userMessage maps resolution failures to the text shown next to the marker.
func userMessage(err error) string {
	if errors.Is(err, domain.ErrResolutionNotFound) || errors.Is(err, domain.ErrHierarchyNotFound) {
		return domain.ErrResolutionNotFound.Error()
	}
	return err.Error()
}

func waitRequested(r *http.Request) bool {
	return r.URL.Query().Get("wait") == "true"
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
