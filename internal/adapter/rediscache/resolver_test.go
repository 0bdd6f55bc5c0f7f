package rediscache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geo-cascade-service/internal/domain"
	"github.com/couchcryptid/geo-cascade-service/internal/observability"
)

// --- mocks ---

type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	readErr error
	setErr  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return redis.NewStringResult("", f.readErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

type countingResolver struct {
	calls int
	name  string
	err   error
}

func (m *countingResolver) ResolveName(context.Context, domain.Coordinates) (string, error) {
	m.calls++
	return m.name, m.err
}

func newResolver(inner domain.NameResolver, rdb Client) (*Resolver, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	return NewResolver(inner, rdb, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics), metrics
}

var madrid = domain.Coordinates{Lon: -3.70, Lat: 40.42}

// --- tests ---

func TestResolver_MissThenHit(t *testing.T) {
	inner := &countingResolver{name: "Madrid"}
	rdb := newFakeRedis()
	r, metrics := newResolver(inner, rdb)

	n1, err := r.ResolveName(context.Background(), madrid)
	require.NoError(t, err)
	n2, err := r.ResolveName(context.Background(), madrid)
	require.NoError(t, err)

	assert.Equal(t, "Madrid", n1)
	assert.Equal(t, "Madrid", n2)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, time.Hour, rdb.ttls[Key(madrid)])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NameCache.WithLabelValues("redis", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NameCache.WithLabelValues("redis", "miss")))
}

func TestResolver_EmptyNameNotStored(t *testing.T) {
	inner := &countingResolver{}
	rdb := newFakeRedis()
	r, _ := newResolver(inner, rdb)

	name, err := r.ResolveName(context.Background(), madrid)
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Empty(t, rdb.data)
}

func TestResolver_InnerErrorPropagates(t *testing.T) {
	inner := &countingResolver{err: errors.New("upstream down")}
	r, _ := newResolver(inner, newFakeRedis())

	_, err := r.ResolveName(context.Background(), madrid)
	require.EqualError(t, err, "upstream down")
}

func TestResolver_RedisDownFallsThrough(t *testing.T) {
	inner := &countingResolver{name: "Madrid"}
	rdb := newFakeRedis()
	rdb.readErr = errors.New("connection refused")
	rdb.setErr = errors.New("connection refused")
	r, _ := newResolver(inner, rdb)

	name, err := r.ResolveName(context.Background(), madrid)
	require.NoError(t, err)
	assert.Equal(t, "Madrid", name)
	assert.Equal(t, 1, inner.calls)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "geo-cascade:name:-3.700000,40.420000", Key(madrid))
}
