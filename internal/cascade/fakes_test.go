package cascade_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/couchcryptid/geo-cascade-service/internal/domain"
)

// --- fakes ---

func key(level domain.HierarchyLevel, parent string) string {
	return level.String() + "/" + parent
}

// fakeData serves canned candidates. A fetch whose key has a gate blocks
// until the gate is closed, which lets tests control arrival order.
type fakeData struct {
	mu        sync.Mutex
	children  map[string][]domain.LocationRecord
	gates     map[string]chan struct{}
	listErr   error
	names     map[domain.Coordinates]string
	nameErr   error
	nameGate  chan struct{}
	nameCalls int
	hierarchy map[string][]domain.HierarchyRecord
	listCalls []string

	// nameGateAt gates lookups of single coordinates and wins over nameGate.
	nameGateAt map[domain.Coordinates]chan struct{}
}

func newFakeData() *fakeData {
	return &fakeData{
		children:   map[string][]domain.LocationRecord{},
		gates:      map[string]chan struct{}{},
		names:      map[domain.Coordinates]string{},
		hierarchy:  map[string][]domain.HierarchyRecord{},
		nameGateAt: map[domain.Coordinates]chan struct{}{},
	}
}

func (f *fakeData) gate(level domain.HierarchyLevel, parent string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[key(level, parent)] = ch
	return ch
}

func (f *fakeData) ListChildren(ctx context.Context, level domain.HierarchyLevel, parent string) ([]domain.LocationRecord, error) {
	f.mu.Lock()
	k := key(level, parent)
	f.listCalls = append(f.listCalls, k)
	gate := f.gates[k]
	records := f.children[k]
	err := f.listErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return records, err
}

func (f *fakeData) ResolveName(ctx context.Context, coords domain.Coordinates) (string, error) {
	f.mu.Lock()
	f.nameCalls++
	gate := f.nameGate
	if g, ok := f.nameGateAt[coords]; ok {
		gate = g
	}
	name, err := f.names[coords], f.nameErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return name, err
}

func (f *fakeData) ResolveHierarchy(_ context.Context, name string) ([]domain.HierarchyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hierarchy[name], nil
}

func (f *fakeData) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.listCalls...)
}

type flyCall struct {
	Center domain.Coordinates
	Zoom   int
}

type markerCall struct {
	At    domain.Coordinates
	Color string
}

type fakeMap struct {
	mu      sync.Mutex
	flies   []flyCall
	markers []markerCall
	popups  map[domain.MarkerHandle]domain.Popup
	err     error
}

func newFakeMap() *fakeMap {
	return &fakeMap{popups: map[domain.MarkerHandle]domain.Popup{}}
}

func (m *fakeMap) FlyTo(_ context.Context, center domain.Coordinates, zoom int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.flies = append(m.flies, flyCall{Center: center, Zoom: zoom})
	return nil
}

func (m *fakeMap) PlaceMarker(_ context.Context, at domain.Coordinates, color string) (domain.MarkerHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.markers = append(m.markers, markerCall{At: at, Color: color})
	return domain.MarkerHandle(fmt.Sprintf("marker-%d", len(m.markers))), nil
}

func (m *fakeMap) AttachPopup(_ context.Context, marker domain.MarkerHandle, popup domain.Popup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.popups[marker] = popup
	return nil
}

func (m *fakeMap) snapshot() ([]flyCall, []markerCall, map[domain.MarkerHandle]domain.Popup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	popups := make(map[domain.MarkerHandle]domain.Popup, len(m.popups))
	for k, v := range m.popups {
		popups[k] = v
	}
	return append([]flyCall(nil), m.flies...), append([]markerCall(nil), m.markers...), popups
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func coords(lon, lat float64) *domain.Coordinates {
	return &domain.Coordinates{Lon: lon, Lat: lat}
}

// madridData is a small slice of the dataset used across tests.
func madridData() *fakeData {
	f := newFakeData()
	f.children[key(domain.Region, "")] = []domain.LocationRecord{
		{Level: domain.Region, Name: "Andalucía"},
		{Level: domain.Region, Name: "Comunidad de Madrid"},
	}
	f.children[key(domain.Province, "Comunidad de Madrid")] = []domain.LocationRecord{
		{Level: domain.Province, Name: "Madrid", ParentName: "Comunidad de Madrid"},
	}
	f.children[key(domain.Province, "Andalucía")] = []domain.LocationRecord{
		{Level: domain.Province, Name: "Sevilla", ParentName: "Andalucía"},
		{Level: domain.Province, Name: "Málaga", ParentName: "Andalucía"},
	}
	f.children[key(domain.Municipality, "Madrid")] = []domain.LocationRecord{
		{Level: domain.Municipality, Name: "Alcobendas", ParentName: "Madrid", Coordinates: coords(-3.64, 40.54)},
		{Level: domain.Municipality, Name: "Madrid", ParentName: "Madrid", Coordinates: coords(-3.70, 40.42)},
		{Level: domain.Municipality, Name: "Sin Centro", ParentName: "Madrid"},
	}
	f.children[key(domain.Municipality, "Sevilla")] = []domain.LocationRecord{
		{Level: domain.Municipality, Name: "Dos Hermanas", ParentName: "Sevilla", Coordinates: coords(-5.92, 37.28)},
	}
	f.names[domain.Coordinates{Lon: -3.70, Lat: 40.42}] = "Madrid"
	f.names[domain.Coordinates{Lon: -3.64, Lat: 40.54}] = "Alcobendas"
	f.hierarchy["Madrid"] = []domain.HierarchyRecord{
		{Region: "Comunidad de Madrid", Province: "Madrid", Municipality: "Madrid", Coordinates: coords(-3.70, 40.42)},
	}
	f.hierarchy["Alcobendas"] = []domain.HierarchyRecord{
		{Region: "Comunidad de Madrid", Province: "Madrid", Municipality: "Alcobendas", Coordinates: coords(-3.64, 40.54)},
	}
	return f
}

func (f *fakeData) nameLookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nameCalls
}
