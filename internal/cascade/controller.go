package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/geo-cascade-service/internal/domain"
	"github.com/couchcryptid/geo-cascade-service/internal/observability"
)

// Options tunes the side effects of the cascade.
type Options struct {
	FlyToZoom       int
	MarkerColor     string
	WeatherLinkBase string

	// RefreshResolved re-fetches the Province and Municipality candidate
	// lists after a reverse-resolved write, without clearing selections.
	RefreshResolved bool

	// Clock times fetches. Defaults to the real clock.
	Clock clockwork.Clock
}

// DefaultOptions mirrors the defaults of the service configuration.
func DefaultOptions() Options {
	return Options{
		FlyToZoom:       14,
		MarkerColor:     "red",
		WeatherLinkBase: "/portfolio/projects/weather",
		RefreshResolved: true,
	}
}

// Controller enforces the hierarchy invariant reactively. A forward
// selection change clears every descendant level and fetches candidates for
// the next one. Each level carries a monotonically increasing token; a fetch
// result is applied only if its token is still the newest issued for that
// level, so a slow older request never clobbers a fast newer one.
type Controller struct {
	state   *State
	data    domain.LocationDataService
	maps    domain.MapSync
	opts    Options
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	// base outlives the request that triggered a fetch. Superseded fetches
	// are not aborted, only discarded on arrival.
	base context.Context
	stop context.CancelFunc

	mu       sync.Mutex
	idle     *sync.Cond
	inflight int
	// gen advances on every forward change and every reverse resolution
	// started. A resolution writes only if gen has not moved since it began.
	gen      uint64
	tokens   [levelCount]uint64
	pending  [levelCount]bool
	errs     [levelCount]error
}

// NewController wires a controller around state.
func NewController(state *State, data domain.LocationDataService, maps domain.MapSync, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Controller {
	clk := opts.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	base, stop := context.WithCancel(context.Background())
	c := &Controller{
		state:   state,
		data:    data,
		maps:    maps,
		opts:    opts,
		clock:   clk,
		logger:  logger,
		metrics: metrics,
		base:    base,
		stop:    stop,
	}
	c.idle = sync.NewCond(&c.mu)
	return c
}

// Start fetches the Region candidates.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issueLocked(domain.Region, "")
}

// Select applies a forward selection change at level. Setting a level to the
// value it already holds is a no-op. Region and Province changes clear all
// descendants and fetch the next level's candidates. A Municipality change
// navigates the map when the name matches a candidate with coordinates.
func (c *Controller) Select(ctx context.Context, level domain.HierarchyLevel, value string) error {
	if !level.Valid() {
		return fmt.Errorf("%w: %d", domain.ErrInvalidLevel, int(level))
	}
	value = strings.TrimSpace(value)

	c.mu.Lock()
	if c.state.Selected(level) == value {
		c.mu.Unlock()
		c.logger.Debug("selection unchanged", "level", level.String(), "value", value)
		return nil
	}
	if parent, ok := level.Parent(); ok && value != "" && c.state.Selected(parent) == "" {
		c.mu.Unlock()
		return fmt.Errorf("select %s %q: %w", level, value, domain.ErrParentUnset)
	}

	c.gen++
	c.state.SetSelected(level, value)

	child, hasChild := level.Child()
	if hasChild {
		c.clearBelowLocked(level)
		if value != "" {
			c.issueLocked(child, value)
		}
		c.mu.Unlock()
		return nil
	}

	record, found := domain.FindByName(c.state.Candidates(level), value)
	c.mu.Unlock()

	if !found || record.Coordinates == nil {
		c.logger.Debug("no map action for municipality", "value", value, "matched", found)
		return nil
	}
	return c.navigate(ctx, record)
}

// WriteResolved writes a complete hierarchy without the clear-descendants
// behaviour of Select. Forward fetches still in flight for Province and
// Municipality become stale. Returns false when the state already held the
// hierarchy or h is incomplete.
func (c *Controller) WriteResolved(h domain.HierarchyRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeResolvedLocked(h)
}

// beginResolve starts a reverse resolution and returns its generation.
func (c *Controller) beginResolve() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	return c.gen
}

// writeResolvedAt writes h only if nothing has changed the selection or
// started another resolution since gen was issued.
func (c *Controller) writeResolvedAt(h domain.HierarchyRecord, gen uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return domain.ErrStaleFetch
	}
	c.writeResolvedLocked(h)
	return nil
}

func (c *Controller) writeResolvedLocked(h domain.HierarchyRecord) bool {
	if !h.Complete() {
		return false
	}
	unchanged := true
	for _, l := range domain.Levels {
		if c.state.Selected(l) != h.Name(l) {
			unchanged = false
			break
		}
	}
	if unchanged {
		return false
	}

	c.state.writeHierarchy(h)

	if c.opts.RefreshResolved {
		c.issueLocked(domain.Province, h.Region)
		c.issueLocked(domain.Municipality, h.Province)
	} else {
		c.invalidateLocked(domain.Province)
		c.invalidateLocked(domain.Municipality)
	}
	return true
}

// LevelStatus describes fetch progress at one level.
type LevelStatus struct {
	Pending bool   `json:"pending"`
	Error   string `json:"error,omitempty"`
}

// Status reports pending fetches and the last transport error per level.
func (c *Controller) Status() map[string]LevelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]LevelStatus, levelCount)
	for _, l := range domain.Levels {
		st := LevelStatus{Pending: c.pending[l]}
		if c.errs[l] != nil {
			st.Error = c.errs[l].Error()
		}
		out[l.String()] = st
	}
	return out
}

// LastError returns the transport error of the newest fetch at level, if any.
func (c *Controller) LastError(level domain.HierarchyLevel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errs[level]
}

// Wait blocks until no fetch or popup decoration is in flight.
func (c *Controller) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.inflight > 0 {
		c.idle.Wait()
	}
}

// Close abandons in-flight work and waits for it to return.
func (c *Controller) Close() {
	c.stop()
	c.Wait()
}

func (c *Controller) doneLocked() {
	c.inflight--
	if c.inflight == 0 {
		c.idle.Broadcast()
	}
}

// clearBelowLocked empties every level below level and invalidates fetches
// issued for them.
func (c *Controller) clearBelowLocked(level domain.HierarchyLevel) {
	for l, ok := level.Child(); ok; l, ok = l.Child() {
		c.invalidateLocked(l)
		c.state.SetSelected(l, "")
		c.state.SetCandidates(l, nil)
		c.metrics.CascadeClears.WithLabelValues(l.String()).Inc()
	}
}

func (c *Controller) invalidateLocked(level domain.HierarchyLevel) {
	c.tokens[level]++
	c.pending[level] = false
	c.errs[level] = nil
}

func (c *Controller) issueLocked(level domain.HierarchyLevel, parent string) {
	c.tokens[level]++
	token := c.tokens[level]
	c.pending[level] = true
	c.errs[level] = nil
	c.metrics.FetchesIssued.WithLabelValues(level.String()).Inc()

	c.inflight++
	go c.fetch(level, parent, token)
}

func (c *Controller) fetch(level domain.HierarchyLevel, parent string, token uint64) {
	start := c.clock.Now()
	records, err := c.data.ListChildren(c.base, level, parent)
	c.metrics.FetchDuration.WithLabelValues(level.String()).Observe(c.clock.Since(start).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.doneLocked()

	if token != c.tokens[level] || c.base.Err() != nil {
		c.metrics.FetchesDiscarded.WithLabelValues(level.String()).Inc()
		c.logger.Debug(domain.ErrStaleFetch.Error(),
			"level", level.String(),
			"parent", parent,
			"token", token,
			"current_token", c.tokens[level],
		)
		return
	}
	c.pending[level] = false

	if err != nil {
		if !errors.Is(err, domain.ErrTransport) {
			err = domain.NewTransportError("list "+level.String(), err)
		}
		c.errs[level] = err
		c.metrics.FetchErrors.WithLabelValues(level.String()).Inc()
		c.logger.Warn("candidate fetch failed",
			"level", level.String(),
			"parent", parent,
			"error", err,
		)
		return
	}

	c.state.SetCandidates(level, records)
	c.metrics.FetchesApplied.WithLabelValues(level.String()).Inc()
	c.logger.Debug("candidates applied", "level", level.String(), "parent", parent, "count", len(records))
}

// navigate flies to the municipality, marks it, and decorates the marker with
// the weather link once the station name lookup returns.
func (c *Controller) navigate(ctx context.Context, record domain.LocationRecord) error {
	center := *record.Coordinates
	if err := c.maps.FlyTo(ctx, center, c.opts.FlyToZoom); err != nil {
		return domain.NewTransportError("fly to "+record.Name, err)
	}
	marker, err := c.maps.PlaceMarker(ctx, center, c.opts.MarkerColor)
	if err != nil {
		return domain.NewTransportError("place marker at "+record.Name, err)
	}
	c.metrics.Navigations.Inc()
	c.logger.Info("navigated to municipality",
		"municipality", record.Name,
		"lon", center.Lon,
		"lat", center.Lat,
		"marker", string(marker),
	)

	c.mu.Lock()
	c.inflight++
	c.mu.Unlock()
	go c.decorate(marker, record.Name, center)
	return nil
}

// decorate is fire-and-forget: failures only leave the marker without a
// station name or popup.
func (c *Controller) decorate(marker domain.MarkerHandle, municipality string, at domain.Coordinates) {
	defer func() {
		c.mu.Lock()
		c.doneLocked()
		c.mu.Unlock()
	}()

	popup := domain.WeatherLink(c.opts.WeatherLinkBase, municipality)
	station, err := c.data.ResolveName(c.base, at)
	if err != nil {
		c.logger.Warn("weather station lookup failed", "municipality", municipality, "error", err)
	} else {
		popup.Station = station
	}
	if c.base.Err() != nil {
		return
	}
	if err := c.maps.AttachPopup(c.base, marker, popup); err != nil {
		c.logger.Warn("attach popup failed", "marker", string(marker), "error", err)
	}
}
