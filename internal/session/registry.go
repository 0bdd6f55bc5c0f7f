// Package session keeps the live cascade sessions of the service, one per
// connected map client, and evicts the ones left idle.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/geo-cascade-service/internal/cascade"
	"github.com/couchcryptid/geo-cascade-service/internal/domain"
	"github.com/couchcryptid/geo-cascade-service/internal/observability"
)

// ErrNotFound is returned for unknown or evicted session ids.
var ErrNotFound = errors.New("session not found")

// MapFactory hands out the MapSync a session drives.
type MapFactory interface {
	ForSession(id string) domain.MapSync
}

// Options configures a Registry.
type Options struct {
	Cascade       cascade.Options
	IdleTTL       time.Duration
	SweepInterval time.Duration
	Clock         clockwork.Clock
}

type entry struct {
	session  *cascade.Session
	lastUsed time.Time
}

// Registry owns every live session.
type Registry struct {
	data    domain.LocationDataService
	maps    MapFactory
	opts    Options
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry(data domain.LocationDataService, maps MapFactory, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Registry {
	clk := opts.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	opts.Cascade.Clock = clk
	return &Registry{
		data:     data,
		maps:     maps,
		opts:     opts,
		clock:    clk,
		logger:   logger,
		metrics:  metrics,
		sessions: make(map[string]*entry),
	}
}

// Create starts a new session and begins loading its regions.
func (r *Registry) Create() *cascade.Session {
	id := uuid.NewString()
	s := cascade.NewSession(id, r.data, r.maps.ForSession(id), r.opts.Cascade, r.logger, r.metrics)

	r.mu.Lock()
	r.sessions[id] = &entry{session: s, lastUsed: r.clock.Now()}
	r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	s.Start()
	r.logger.Info("session created", "session_id", id)
	return s
}

// Get returns the session and marks it used.
func (r *Registry) Get(id string) (*cascade.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.lastUsed = r.clock.Now()
	return e.session, nil
}

// Delete closes and removes the session.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.session.Close()
	r.logger.Info("session deleted", "session_id", id)
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many it
// removed.
func (r *Registry) Sweep() int {
	cutoff := r.clock.Now().Add(-r.opts.IdleTTL)

	r.mu.Lock()
	var idle []*entry
	for id, e := range r.sessions {
		if e.lastUsed.Before(cutoff) {
			idle = append(idle, e)
			delete(r.sessions, id)
		}
	}
	r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	for _, e := range idle {
		e.session.Close()
		r.logger.Info("session expired", "session_id", e.session.ID)
	}
	return len(idle)
}

// CheckReadiness returns nil once the hierarchy data service has answered a
// region listing.
func (r *Registry) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("location data service has not answered yet")
	}
	return nil
}

// Run warms up the data service, then sweeps idle sessions until the context
// is cancelled. Every remaining session is closed on the way out.
func (r *Registry) Run(ctx context.Context) error {
	r.logger.Info("session registry started",
		"idle_ttl", r.opts.IdleTTL,
		"sweep_interval", r.opts.SweepInterval,
	)
	defer r.closeAll()

	if !r.warmup(ctx) {
		return nil
	}

	ticker := r.clock.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("session registry stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("idle sessions swept", "count", n)
			}
		}
	}
}

// warmup lists regions until it succeeds. Returns false if the context ends
// first.
func (r *Registry) warmup(ctx context.Context) bool {
	// Start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		regions, err := r.data.ListChildren(ctx, domain.Region, "")
		if err == nil {
			r.ready.Store(true)
			r.logger.Info("location data service ready", "regions", len(regions))
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		r.logger.Warn("location data warmup failed", "error", err, "retry_in", backoff)
		if !r.sleep(ctx, backoff) {
			return false
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*entry)
	r.metrics.ActiveSessions.Set(0)
	r.mu.Unlock()

	for _, e := range all {
		e.session.Close()
	}
}

func (r *Registry) sleep(ctx context.Context, d time.Duration) bool {
	timer := r.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
