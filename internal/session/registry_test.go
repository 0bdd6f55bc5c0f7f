package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geo-cascade-service/internal/cascade"
	"github.com/couchcryptid/geo-cascade-service/internal/domain"
	"github.com/couchcryptid/geo-cascade-service/internal/observability"
	"github.com/couchcryptid/geo-cascade-service/internal/session"
)

// --- mocks ---

type mockData struct {
	failures atomic.Int32
	calls    atomic.Int32
}

func (m *mockData) ListChildren(_ context.Context, level domain.HierarchyLevel, _ string) ([]domain.LocationRecord, error) {
	m.calls.Add(1)
	if m.failures.Load() > 0 {
		m.failures.Add(-1)
		return nil, errors.New("upstream down")
	}
	if level == domain.Region {
		return []domain.LocationRecord{{Name: "Galicia"}}, nil
	}
	return nil, nil
}

func (m *mockData) ResolveName(context.Context, domain.Coordinates) (string, error) { return "", nil }

func (m *mockData) ResolveHierarchy(context.Context, string) ([]domain.HierarchyRecord, error) {
	return nil, nil
}

type nopMap struct{}

func (nopMap) FlyTo(context.Context, domain.Coordinates, int) error { return nil }
func (nopMap) PlaceMarker(context.Context, domain.Coordinates, string) (domain.MarkerHandle, error) {
	return "m", nil
}
func (nopMap) AttachPopup(context.Context, domain.MarkerHandle, domain.Popup) error { return nil }

type nopMaps struct{}

func (nopMaps) ForSession(string) domain.MapSync { return nopMap{} }

func newRegistry(t *testing.T, data *mockData, clk clockwork.Clock) (*session.Registry, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetricsForTesting()
	reg := session.NewRegistry(data, nopMaps{}, session.Options{
		Cascade:       cascade.DefaultOptions(),
		IdleTTL:       30 * time.Minute,
		SweepInterval: time.Minute,
		Clock:         clk,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics)
	return reg, metrics
}

// --- tests ---

func TestRegistry_CreateGetDelete(t *testing.T) {
	reg, metrics := newRegistry(t, &mockData{}, clockwork.NewFakeClock())

	s := reg.Create()
	s.Wait()
	assert.Len(t, s.View().Candidates["region"], 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActiveSessions))

	got, err := reg.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, reg.Delete(s.ID))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ActiveSessions))

	_, err = reg.Get(s.ID)
	require.ErrorIs(t, err, session.ErrNotFound)
	require.ErrorIs(t, reg.Delete(s.ID), session.ErrNotFound)
}

func TestRegistry_CreateAssignsUniqueIDs(t *testing.T) {
	reg, _ := newRegistry(t, &mockData{}, clockwork.NewFakeClock())

	a := reg.Create()
	b := reg.Create()
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_Sweep_EvictsIdleOnly(t *testing.T) {
	clk := clockwork.NewFakeClock()
	reg, _ := newRegistry(t, &mockData{}, clk)

	idle := reg.Create()
	clk.Advance(20 * time.Minute)
	active := reg.Create()
	clk.Advance(15 * time.Minute)

	assert.Equal(t, 1, reg.Sweep())

	_, err := reg.Get(idle.ID)
	require.ErrorIs(t, err, session.ErrNotFound)
	_, err = reg.Get(active.ID)
	require.NoError(t, err)
}

func TestRegistry_Get_RefreshesIdleTimer(t *testing.T) {
	clk := clockwork.NewFakeClock()
	reg, _ := newRegistry(t, &mockData{}, clk)

	s := reg.Create()
	clk.Advance(25 * time.Minute)
	_, err := reg.Get(s.ID)
	require.NoError(t, err)
	clk.Advance(25 * time.Minute)

	assert.Zero(t, reg.Sweep())
}

func TestRegistry_Run_WarmsUpAndSweeps(t *testing.T) {
	clk := clockwork.NewFakeClock()
	data := &mockData{}
	data.failures.Store(1)
	reg, _ := newRegistry(t, data, clk)
	require.Error(t, reg.CheckReadiness(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reg.Run(ctx) }()

	// First warmup attempt fails and waits on the backoff timer.
	require.NoError(t, clk.BlockUntilContext(ctx, 1))
	clk.Advance(200 * time.Millisecond)

	require.Eventually(t, func() bool {
		return reg.CheckReadiness(context.Background()) == nil
	}, time.Second, 5*time.Millisecond)

	reg.Create()
	require.NoError(t, clk.BlockUntilContext(ctx, 1))
	clk.Advance(31 * time.Minute)

	require.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("registry did not stop")
	}
}

func TestRegistry_Run_WarmupBackoffDoubles(t *testing.T) {
	clk := clockwork.NewFakeClock()
	data := &mockData{}
	data.failures.Store(2)
	reg, _ := newRegistry(t, data, clk)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = reg.Run(ctx) }()

	require.NoError(t, clk.BlockUntilContext(ctx, 1))
	clk.Advance(200 * time.Millisecond)

	// Second failure waits 400ms before the next attempt.
	require.NoError(t, clk.BlockUntilContext(ctx, 1))
	require.Equal(t, int32(2), data.calls.Load())
	clk.Advance(399 * time.Millisecond)
	assert.Never(t, func() bool { return data.calls.Load() > 2 }, 50*time.Millisecond, 5*time.Millisecond)

	clk.Advance(time.Millisecond)
	require.Eventually(t, func() bool {
		return reg.CheckReadiness(context.Background()) == nil
	}, time.Second, 5*time.Millisecond)
}

func TestRegistry_Run_ClosesSessionsOnShutdown(t *testing.T) {
	reg, metrics := newRegistry(t, &mockData{}, clockwork.NewFakeClock())
	reg.Create()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, reg.Run(ctx))

	assert.Zero(t, reg.Len())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ActiveSessions))
}
