package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/marmos91/dittoreg/internal/logger"
	"github.com/marmos91/dittoreg/pkg/config"
	"github.com/marmos91/dittoreg/pkg/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Admin.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.Exports = []config.ExportConfig{{ID: 1, Path: "/export"}, {ID: 2, Path: "/data"}}
	return cfg
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func serve(t *testing.T, srv *RegServer) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestNew_SeedsExports(t *testing.T) {
	srv, err := New(testConfig())
	require.NoError(t, err)

	snaps := srv.Collector().ExportSnapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "/export", snaps[0].Path)
	assert.Equal(t, "/data", snaps[1].Path)
	assert.EqualValues(t, 0, snaps[0].Refs)

	assert.Nil(t, srv.AdminServer())
	assert.Nil(t, srv.MetricsServer())
}

func TestNew_InvalidRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Clients.RateLimit = map[string]any{"per": "whenever"}

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNew_RateLimitApplied(t *testing.T) {
	cfg := testConfig()
	cfg.Clients.RateLimit = map[string]any{"enabled": true, "requests": 1, "per": "1s", "burst": 1}

	srv, err := New(cfg, WithClock(clock.NewMock()))
	require.NoError(t, err)

	addr := netip.MustParseAddr("10.0.0.1")
	req, err := srv.Collector().Begin(context.Background(), addr)
	require.NoError(t, err)
	req.Done()

	_, err = srv.Collector().Begin(context.Background(), addr)
	assert.ErrorIs(t, err, stats.ErrRateLimited)
}

func TestNew_RateLimitBelowOnePerSecond(t *testing.T) {
	mock := clock.NewMock()
	cfg := testConfig()
	cfg.Clients.RateLimit = map[string]any{"enabled": true, "requests": 30, "per": "1m", "burst": 1}

	srv, err := New(cfg, WithClock(mock))
	require.NoError(t, err)

	addr := netip.MustParseAddr("10.0.0.2")
	begin := func() error {
		req, err := srv.Collector().Begin(context.Background(), addr)
		if err == nil {
			req.Done()
		}
		return err
	}

	require.NoError(t, begin())
	assert.ErrorIs(t, begin(), stats.ErrRateLimited)

	// 30/min refills one token every 2s, not every second.
	mock.Add(time.Second)
	assert.ErrorIs(t, begin(), stats.ErrRateLimited)

	mock.Add(time.Second)
	assert.NoError(t, begin())
}

func TestNew_MetricsRegistered(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	reg := prometheus.NewRegistry()

	srv, err := New(cfg, WithRegistry(reg))
	require.NoError(t, err)
	require.NotNil(t, srv.MetricsServer())

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["dittoreg_export_refs"], "stats collector must be registered")
	assert.True(t, names["dittoreg_registry_lookups_total"], "registry metrics must be wired")
}

func TestServe_StopsOnCancel(t *testing.T) {
	srv, err := New(testConfig())
	require.NoError(t, err)

	cancel, done := serve(t, srv)
	cancel()
	assert.NoError(t, wait(t, done))

	assert.ErrorIs(t, srv.Serve(context.Background()), ErrAlreadyServing)
}

func TestServe_AdminEndpoint(t *testing.T) {
	cfg := testConfig()
	cfg.Admin.Enabled = true
	cfg.Admin.Port = freePort(t)

	srv, err := New(cfg)
	require.NoError(t, err)

	cancel, done := serve(t, srv)

	url := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Admin.Port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, wait(t, done))
}

func TestServe_EndpointFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig()
	cfg.Admin.Enabled = true
	cfg.Admin.Port = ln.Addr().(*net.TCPAddr).Port

	srv, err := New(cfg)
	require.NoError(t, err)

	_, done := serve(t, srv)
	assert.Error(t, wait(t, done), "port already in use must fail Serve")
}

func TestServe_LogsSummary(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "dittoreg.log")
	require.NoError(t, logger.SetOutput(logPath))
	defer func() { _ = logger.SetOutput("stdout") }()

	mock := clock.NewMock()
	cfg := testConfig()
	cfg.Server.StatsLogInterval = time.Minute

	srv, err := New(cfg, WithClock(mock))
	require.NoError(t, err)

	cancel, done := serve(t, srv)

	assert.Eventually(t, func() bool {
		mock.Add(time.Minute)
		logger.Sync()
		data, err := os.ReadFile(logPath)
		return err == nil && strings.Contains(string(data), "Registry summary")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, wait(t, done))
}
