package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/depgraph/internal/config"
	"github.com/aristath/depgraph/internal/marketdata"
	testutil "github.com/aristath/depgraph/internal/testing"
	"github.com/aristath/depgraph/internal/trace"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
functions:
  - id: trade-pv
    target_type: TRADE
    output:
      value: PRESENT_VALUE
    inputs:
      - value: YIELD_CURVE
        target: CURRENCY~USD
        properties:
          Curve: [Forward]
  - id: position-pv-forward
    target_type: POSITION
    exclusion_group: position-pv
    output:
      value: PRESENT_VALUE
    inputs:
      - value: YIELD_CURVE
        target: CURRENCY~USD
        properties:
          Curve: [Forward]
  - id: position-pv-discount
    target_type: POSITION
    exclusion_group: position-pv
    output:
      value: PRESENT_VALUE
    inputs:
      - value: YIELD_CURVE
        target: CURRENCY~USD
        properties:
          Curve: [Discount]
`

const portfolioYAML = `
portfolios:
  - id: main
    root:
      id: root
      positions:
        - id: p1
          security_id: BOND1
          security_type: BOND
          trades:
            - id: t1
`

const viewYAML = `
name: Risk
configurations:
  - name: Default
    requirements:
      BOND:
        - value: PRESENT_VALUE
  - name: Yields
    requirements:
      BOND:
        - value: YIELD
`

func writeFiles(t *testing.T, dir string) {
	t.Helper()
	for name, content := range map[string]string{
		"catalog.yaml":   catalogYAML,
		"portfolio.yaml": portfolioYAML,
		"view.yaml":      viewYAML,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
}

// seedSnapshot writes the curve fixtures to a snapshot database and returns its path.
func seedSnapshot(t *testing.T) string {
	t.Helper()
	db, path := testutil.NewTestDB(t, "marketdata")
	snapshot := marketdata.NewSnapshotProvider(db.Conn(), zerolog.Nop())
	for _, f := range testutil.NewCurveFixtures() {
		require.NoError(t, snapshot.Put(context.Background(), f.ValueName, f.Target, f.Properties, "test"))
	}
	return path
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		DataDir:       dir,
		CatalogPath:   filepath.Join(dir, "catalog.yaml"),
		PortfolioPath: filepath.Join(dir, "portfolio.yaml"),
		ViewPath:      filepath.Join(dir, "view.yaml"),
		TraceOut:      filepath.Join(dir, "out", "trace.json"),
		MetricsOut:    filepath.Join(dir, "metrics.prom"),
		Workers:       2,
		GreedyCaching: true,
		SharedCaching: true,
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir)
	cfg := testConfig(dir)
	cfg.MarketDataDB = seedSnapshot(t)

	summary, err := run(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	// Default: trade resolves, position is ambiguous between the two curve functions, root node
	// has no function. Yields: nothing produces YIELD.
	assert.Equal(t, int64(6), summary.Submitted)
	assert.Equal(t, int64(1), summary.Resolved)
	assert.Equal(t, int64(1), summary.Ambiguous)
	assert.Equal(t, int64(4), summary.Unresolved)
	assert.Equal(t, int64(0), summary.Faults)
	assert.Equal(t, int64(5), summary.Problems())

	f, err := os.Open(filepath.Join(dir, "out", "trace.Default.json"))
	require.NoError(t, err)
	defer f.Close()
	tr, err := trace.DecodeJSON(f)
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Mapping.Len())
	assert.NotEmpty(t, tr.Graph.Nodes)

	assert.FileExists(t, filepath.Join(dir, "out", "trace.Yields.json"))

	metrics, err := os.ReadFile(cfg.MetricsOut)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "depgraph_resolution_outcomes_total")
}

func TestRun_WithoutSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir)
	cfg := testConfig(dir)
	cfg.MetricsOut = ""
	cfg.TraceOut = filepath.Join(dir, "trace.msgpack")

	summary, err := run(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.Resolved)
	assert.Equal(t, summary.Submitted, summary.Unresolved)

	f, err := os.Open(filepath.Join(dir, "trace.Default.msgpack"))
	require.NoError(t, err)
	defer f.Close()
	_, err = trace.DecodeMsgpack(f)
	require.NoError(t, err)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "missing catalog", mutate: func(c *config.Config) { c.CatalogPath += ".missing" }},
		{name: "missing portfolio", mutate: func(c *config.Config) { c.PortfolioPath += ".missing" }},
		{name: "missing view", mutate: func(c *config.Config) { c.ViewPath += ".missing" }},
		{name: "unknown portfolio", mutate: func(c *config.Config) { c.PortfolioID = "other" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir)
			cfg := testConfig(dir)
			tt.mutate(cfg)

			_, err := run(context.Background(), cfg, zerolog.Nop())
			assert.Error(t, err)
		})
	}
}

func TestRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir)
	cfg := testConfig(dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := run(ctx, cfg, zerolog.Nop())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTracePath(t *testing.T) {
	assert.Equal(t, "/out/trace.json", tracePath("/out/trace.json", "Default", false))
	assert.Equal(t, "/out/trace.Default.json", tracePath("/out/trace.json", "Default", true))
	assert.Equal(t, "/out/trace.a_b_c.msgpack", tracePath("/out/trace.msgpack", "a/b c", true))
	assert.Equal(t, "/out/trace.x", tracePath("/out/trace", "x", true))
}
