package domain

import "context"

// CandidateLister lists the children of a parent at the given level.
type CandidateLister interface {
	// ListChildren returns the candidates at level whose parent is parentName.
	// Region ignores parentName. An empty slice is a valid "no children" result.
	ListChildren(ctx context.Context, level HierarchyLevel, parentName string) ([]LocationRecord, error)
}

// NameResolver maps coordinates to a place name.
type NameResolver interface {
	// ResolveName returns the place name at coords, or "" with a nil error
	// when the provider knows no place there.
	ResolveName(ctx context.Context, coords Coordinates) (string, error)
}

// HierarchyResolver maps a place name to its full hierarchy.
type HierarchyResolver interface {
	// ResolveHierarchy returns every record matching name exactly. Callers
	// treat the first record as canonical.
	ResolveHierarchy(ctx context.Context, name string) ([]HierarchyRecord, error)
}

// LocationDataService is the complete external data collaborator.
type LocationDataService interface {
	CandidateLister
	NameResolver
	HierarchyResolver
}

// DataService assembles a LocationDataService from independent providers,
// since candidate listing and name lookup usually live in different APIs.
type DataService struct {
	CandidateLister
	NameResolver
	HierarchyResolver
}

// NewDataService combines the three providers. A nil names disables reverse
// name lookup: every coordinate resolves to no place.
func NewDataService(lister CandidateLister, names NameResolver, hierarchy HierarchyResolver) *DataService {
	if names == nil {
		names = noNames{}
	}
	return &DataService{
		CandidateLister:   lister,
		NameResolver:      names,
		HierarchyResolver: hierarchy,
	}
}

type noNames struct{}

func (noNames) ResolveName(context.Context, Coordinates) (string, error) { return "", nil }
