package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geo-cascade-service/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestList_RequiresParentBelowRegion(t *testing.T) {
	_, err := run(t, "list", "province")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--parent is required")
}

func TestList_RejectsUnknownLevel(t *testing.T) {
	_, err := run(t, "list", "country")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid hierarchy level")
}

func TestResolve_RequiresCoordinates(t *testing.T) {
	_, err := run(t, "resolve", "--lon", "-3.7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lat")
}

func TestCascadeOptionsFromConfig(t *testing.T) {
	t.Setenv("FLY_TO_ZOOM", "12")
	t.Setenv("MARKER_COLOR", "green")
	t.Setenv("REFRESH_RESOLVED", "false")
	t.Setenv("NAME_PROVIDER", "none")

	cfg, err := config.Load()
	require.NoError(t, err)
	opts := cascadeOptions(cfg)
	assert.Equal(t, 12, opts.FlyToZoom)
	assert.Equal(t, "green", opts.MarkerColor)
	assert.False(t, opts.RefreshResolved)
}
