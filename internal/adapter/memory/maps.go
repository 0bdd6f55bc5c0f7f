// Package memory provides an in-process MapSync that records map commands.
// It backs the CLI and the service when no Kafka brokers are configured.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/couchcryptid/geo-cascade-service/internal/domain"
)

// Call is one recorded map command.
type Call struct {
	Command  string              `json:"command"`
	Center   *domain.Coordinates `json:"center,omitempty"`
	Zoom     int                 `json:"zoom,omitempty"`
	Marker   domain.MarkerHandle `json:"marker,omitempty"`
	Replaces domain.MarkerHandle `json:"replaces,omitempty"`
	Color    string              `json:"color,omitempty"`
	Popup    *domain.Popup       `json:"popup,omitempty"`
}

// Maps hands out one recording Map per session.
type Maps struct {
	logger *slog.Logger
}

// NewMaps creates a recorder factory.
func NewMaps(logger *slog.Logger) *Maps {
	return &Maps{logger: logger}
}

// ForSession returns a fresh recorder for session id.
func (m *Maps) ForSession(id string) domain.MapSync {
	return NewMap(m.logger.With("session_id", id))
}

// Map records every command it receives and keeps a single active marker.
type Map struct {
	logger *slog.Logger

	mu     sync.Mutex
	calls  []Call
	marker domain.MarkerHandle
	popups map[domain.MarkerHandle]domain.Popup
}

// NewMap creates an empty recorder.
func NewMap(logger *slog.Logger) *Map {
	return &Map{logger: logger, popups: make(map[domain.MarkerHandle]domain.Popup)}
}

func (m *Map) FlyTo(_ context.Context, center domain.Coordinates, zoom int) error {
	m.record(Call{Command: "fly_to", Center: &center, Zoom: zoom})
	m.logger.Info("map fly to", "lon", center.Lon, "lat", center.Lat, "zoom", zoom)
	return nil
}

func (m *Map) PlaceMarker(_ context.Context, at domain.Coordinates, color string) (domain.MarkerHandle, error) {
	handle := domain.MarkerHandle(uuid.NewString())

	m.mu.Lock()
	prev := m.marker
	m.marker = handle
	delete(m.popups, prev)
	m.calls = append(m.calls, Call{Command: "place_marker", Center: &at, Marker: handle, Replaces: prev, Color: color})
	m.mu.Unlock()

	m.logger.Info("map marker placed", "marker", string(handle), "lon", at.Lon, "lat", at.Lat, "color", color)
	return handle, nil
}

func (m *Map) AttachPopup(_ context.Context, marker domain.MarkerHandle, popup domain.Popup) error {
	m.mu.Lock()
	if marker == m.marker {
		m.popups[marker] = popup
	}
	m.calls = append(m.calls, Call{Command: "attach_popup", Marker: marker, Popup: &popup})
	m.mu.Unlock()

	m.logger.Info("map popup attached", "marker", string(marker), "href", popup.Href, "station", popup.Station)
	return nil
}

// Calls returns a copy of the recorded commands.
func (m *Map) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Marker returns the active marker and its popup, if any.
func (m *Map) Marker() (domain.MarkerHandle, *domain.Popup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.popups[m.marker]; ok {
		return m.marker, &p
	}
	return m.marker, nil
}

func (m *Map) record(c Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}
