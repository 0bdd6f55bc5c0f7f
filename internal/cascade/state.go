package cascade

import (
	"slices"
	"sync"

	"github.com/couchcryptid/geo-cascade-service/internal/domain"
)

const levelCount = 3

// State holds the three-level selection and the candidate list fetched for
// each level. It is a plain data holder: setting a level never touches its
// descendants. Clearing is the Controller's job.
type State struct {
	mu         sync.RWMutex
	selected   [levelCount]string
	candidates [levelCount][]domain.LocationRecord
}

// NewState returns a State with every level empty.
func NewState() *State {
	return &State{}
}

// SetSelected sets the selection at level.
func (s *State) SetSelected(level domain.HierarchyLevel, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected[level] = value
}

// SetCandidates replaces the candidate list at level. The current selection
// is not validated against the new list.
func (s *State) SetCandidates(level domain.HierarchyLevel, records []domain.LocationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates[level] = slices.Clone(records)
}

// Selected returns the selection at level, "" when empty.
func (s *State) Selected(level domain.HierarchyLevel) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected[level]
}

// Candidates returns a copy of the candidate list at level.
func (s *State) Candidates(level domain.HierarchyLevel) []domain.LocationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.candidates[level])
}

// writeHierarchy sets all three selections under one lock so no reader ever
// observes a partially written hierarchy.
func (s *State) writeHierarchy(h domain.HierarchyRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range domain.Levels {
		s.selected[l] = h.Name(l)
	}
}

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	Selected   map[string]string                  `json:"selected"`
	Candidates map[string][]domain.LocationRecord `json:"candidates"`
}

// Snapshot copies the whole state under one read lock.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Selected:   make(map[string]string, levelCount),
		Candidates: make(map[string][]domain.LocationRecord, levelCount),
	}
	for _, l := range domain.Levels {
		snap.Selected[l.String()] = s.selected[l]
		snap.Candidates[l.String()] = slices.Clone(s.candidates[l])
	}
	return snap
}

// Consistent reports whether no level is selected while its parent is empty.
func (snap Snapshot) Consistent() bool {
	for _, l := range domain.Levels {
		p, ok := l.Parent()
		if !ok {
			continue
		}
		if snap.Selected[l.String()] != "" && snap.Selected[p.String()] == "" {
			return false
		}
	}
	return true
}
