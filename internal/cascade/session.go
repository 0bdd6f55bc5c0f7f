package cascade

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/geo-cascade-service/internal/domain"
	"github.com/couchcryptid/geo-cascade-service/internal/observability"
)

// Session bundles one CascadeState with its controller, resolver and map.
type Session struct {
	ID       string
	state    *State
	ctrl     *Controller
	resolver *Resolver
	maps     domain.MapSync
	logger   *slog.Logger
}

// NewSession builds an idle session. Call Start to load the regions.
func NewSession(id string, data domain.LocationDataService, maps domain.MapSync, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Session {
	logger = logger.With("session_id", id)
	state := NewState()
	ctrl := NewController(state, data, maps, opts, logger, metrics)
	return &Session{
		ID:       id,
		state:    state,
		ctrl:     ctrl,
		resolver: NewResolver(ctrl, data, maps, opts.WeatherLinkBase, logger, metrics),
		maps:     maps,
		logger:   logger,
	}
}

// Start issues the Region candidate fetch.
func (s *Session) Start() {
	s.ctrl.Start()
}

// Select is the forward path. A change that is applied supersedes any
// in-flight reverse resolution; a no-op or a rejected select does not.
func (s *Session) Select(ctx context.Context, level domain.HierarchyLevel, value string) error {
	return s.ctrl.Select(ctx, level, value)
}

// MarkerResult is the outcome of a user-placed marker.
type MarkerResult struct {
	Marker    domain.MarkerHandle     `json:"marker"`
	Hierarchy *domain.HierarchyRecord `json:"hierarchy,omitempty"`
}

// PlaceMarker places the single active marker at coords and reverse-resolves
// its hierarchy. An empty color picks a random one. When resolution fails the
// marker handle is still returned alongside the error.
func (s *Session) PlaceMarker(ctx context.Context, coords domain.Coordinates, color string) (MarkerResult, error) {
	if err := coords.Validate(); err != nil {
		return MarkerResult{}, err
	}
	if color == "" {
		color = domain.RandomColor()
	}
	marker, err := s.maps.PlaceMarker(ctx, coords, color)
	if err != nil {
		return MarkerResult{}, domain.NewTransportError("place marker", err)
	}

	rec, err := s.resolver.Resolve(ctx, coords, marker)
	if err != nil {
		return MarkerResult{Marker: marker}, fmt.Errorf("resolve marker %s: %w", marker, err)
	}
	return MarkerResult{Marker: marker, Hierarchy: &rec}, nil
}

// View is the externally visible session state.
type View struct {
	ID string `json:"id"`
	Snapshot
	Status map[string]LevelStatus `json:"status"`
}

// View returns the current selection, candidates and fetch status.
func (s *Session) View() View {
	return View{
		ID:       s.ID,
		Snapshot: s.state.Snapshot(),
		Status:   s.ctrl.Status(),
	}
}

// Wait blocks until background fetches settle. Used by the CLI and tests.
func (s *Session) Wait() {
	s.ctrl.Wait()
}

// Close stops background work.
func (s *Session) Close() {
	s.ctrl.Close()
	s.logger.Debug("session closed")
}
