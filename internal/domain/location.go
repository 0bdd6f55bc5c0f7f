package domain

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// HierarchyLevel identifies one level of the administrative cascade.
type HierarchyLevel int

const (
	Region HierarchyLevel = iota
	Province
	Municipality
)

// Levels lists every level from the root down.
var Levels = []HierarchyLevel{Region, Province, Municipality}

var levelNames = [...]string{"region", "province", "municipality"}

func (l HierarchyLevel) String() string {
	if !l.Valid() {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// Valid reports whether l is one of the three known levels.
func (l HierarchyLevel) Valid() bool {
	return l >= Region && l <= Municipality
}

// Parent returns the level above l. Region has no parent.
func (l HierarchyLevel) Parent() (HierarchyLevel, bool) {
	if l <= Region || !l.Valid() {
		return 0, false
	}
	return l - 1, true
}

// Child returns the level below l. Municipality has no child.
func (l HierarchyLevel) Child() (HierarchyLevel, bool) {
	if l >= Municipality || !l.Valid() {
		return 0, false
	}
	return l + 1, true
}

// ParseLevel converts a level name ("region", "province", "municipality") into
// a HierarchyLevel. Matching is case-insensitive.
func ParseLevel(s string) (HierarchyLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range levelNames {
		if n == name {
			return HierarchyLevel(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

// Coordinates is a WGS-84 position in (lon, lat) order.
type Coordinates struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Point converts c to an orb.Point.
func (c Coordinates) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// Validate rejects positions outside the WGS-84 range.
func (c Coordinates) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: lat %f out of range", ErrInvalidCoordinates, c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: lon %f out of range", ErrInvalidCoordinates, c.Lon)
	}
	return nil
}

// LocationRecord is one candidate at a given level. Records are immutable
// values fetched fresh per request.
type LocationRecord struct {
	Level       HierarchyLevel `json:"-"`
	Name        string         `json:"name"`
	ParentName  string         `json:"parent_name,omitempty"`
	Coordinates *Coordinates   `json:"coordinates,omitempty"`
}

// HierarchyRecord is the full ancestry of a municipality as returned by
// name-to-hierarchy lookups.
type HierarchyRecord struct {
	Region       string       `json:"region"`
	Province     string       `json:"province"`
	Municipality string       `json:"municipality"`
	Coordinates  *Coordinates `json:"coordinates,omitempty"`
}

// Name returns the value the record holds for level.
func (h HierarchyRecord) Name(level HierarchyLevel) string {
	switch level {
	case Region:
		return h.Region
	case Province:
		return h.Province
	case Municipality:
		return h.Municipality
	}
	return ""
}

// Complete reports whether all three levels are populated.
func (h HierarchyRecord) Complete() bool {
	return h.Region != "" && h.Province != "" && h.Municipality != ""
}
