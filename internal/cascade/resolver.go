package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb/geo"

	"github.com/couchcryptid/geo-cascade-service/internal/domain"
	"github.com/couchcryptid/geo-cascade-service/internal/observability"
)

// Resolver turns coordinates into a full hierarchy selection. It writes the
// resolved hierarchy through the controller's write-without-clears path,
// never through Select, so the cascade does not erase the values it just set.
// A forward change or a newer resolution that lands first makes the write
// stale.
type Resolver struct {
	ctrl     *Controller
	data     domain.LocationDataService
	maps     domain.MapSync
	linkBase string
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewResolver creates a Resolver that writes into ctrl's state.
func NewResolver(ctrl *Controller, data domain.LocationDataService, maps domain.MapSync, linkBase string, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		ctrl:     ctrl,
		data:     data,
		maps:     maps,
		linkBase: linkBase,
		logger:   logger,
		metrics:  metrics,
	}
}

// Resolve resolves coords to a hierarchy, writes it into the cascade state and
// attaches the weather link to marker. On failure the state is untouched and
// the marker stays where it was placed, without a popup.
func (r *Resolver) Resolve(ctx context.Context, coords domain.Coordinates, marker domain.MarkerHandle) (domain.HierarchyRecord, error) {
	gen := r.ctrl.beginResolve()

	name, err := r.data.ResolveName(ctx, coords)
	if err != nil {
		return domain.HierarchyRecord{}, r.fail("transport_error", coords, domain.NewTransportError("resolve name", err))
	}
	if name == "" {
		return domain.HierarchyRecord{}, r.fail("not_found", coords, domain.ErrResolutionNotFound)
	}

	records, err := r.data.ResolveHierarchy(ctx, name)
	if err != nil {
		return domain.HierarchyRecord{}, r.fail("transport_error", coords, domain.NewTransportError("resolve hierarchy", err))
	}
	rec, ok := firstComplete(records)
	if !ok {
		return domain.HierarchyRecord{}, r.fail("hierarchy_not_found", coords, fmt.Errorf("%w: %q", domain.ErrHierarchyNotFound, name))
	}
	if len(records) > 1 {
		r.logger.Debug("ambiguous place name, first match wins", "name", name, "matches", len(records))
	}

	if err := r.ctrl.writeResolvedAt(rec, gen); err != nil {
		return domain.HierarchyRecord{}, r.fail("stale", coords, err)
	}

	r.metrics.Resolutions.WithLabelValues("success").Inc()
	if rec.Coordinates != nil {
		r.metrics.ResolveDistance.Observe(geo.Distance(coords.Point(), rec.Coordinates.Point()))
	}
	r.logger.Info("reverse resolution applied",
		"name", name,
		"region", rec.Region,
		"province", rec.Province,
		"municipality", rec.Municipality,
	)

	if marker != "" {
		if err := r.maps.AttachPopup(ctx, marker, domain.WeatherLink(r.linkBase, rec.Municipality)); err != nil {
			r.logger.Warn("attach popup failed", "marker", string(marker), "error", err)
		}
	}
	return rec, nil
}

// firstComplete returns the first record naming all three levels. Rows with a
// missing region or province would break the hierarchy invariant.
func firstComplete(records []domain.HierarchyRecord) (domain.HierarchyRecord, bool) {
	for _, rec := range records {
		if rec.Complete() {
			return rec, true
		}
	}
	return domain.HierarchyRecord{}, false
}

func (r *Resolver) fail(outcome string, coords domain.Coordinates, err error) error {
	r.metrics.Resolutions.WithLabelValues(outcome).Inc()
	if errors.Is(err, domain.ErrStaleFetch) {
		r.logger.Debug("reverse resolution superseded", "lon", coords.Lon, "lat", coords.Lat)
		return err
	}
	r.logger.Warn("reverse resolution failed",
		"lon", coords.Lon,
		"lat", coords.Lat,
		"outcome", outcome,
		"error", err,
	)
	return err
}
