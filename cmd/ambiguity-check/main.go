// Package main is the entry point for the ambiguity checker. It loads a function catalog, a
// portfolio and a view, resolves every requirement the view asks of the portfolio and writes
// one resolution trace per calculation configuration.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/aristath/depgraph/internal/ambiguity"
	"github.com/aristath/depgraph/internal/config"
	"github.com/aristath/depgraph/internal/database"
	"github.com/aristath/depgraph/internal/function"
	"github.com/aristath/depgraph/internal/marketdata"
	"github.com/aristath/depgraph/internal/portfolio"
	"github.com/aristath/depgraph/internal/resolution"
	"github.com/aristath/depgraph/internal/trace"
	"github.com/aristath/depgraph/internal/work"
	"github.com/aristath/depgraph/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	// SIGINT/SIGTERM stop dispatching; requirements already running finish.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := run(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Ambiguity check failed")
	}
	if cfg.Strict && summary.Problems() > 0 {
		log.Error().Int64("problems", summary.Problems()).Msg("Requirements did not resolve uniquely")
		os.Exit(1)
	}
}

// run checks every configuration of the view and returns the combined summary.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ambiguity.Summary, error) {
	var total ambiguity.Summary

	catalog, err := function.LoadCatalogFile(cfg.CatalogPath)
	if err != nil {
		return total, err
	}
	portfolios, err := portfolio.LoadFile(cfg.PortfolioPath)
	if err != nil {
		return total, err
	}
	view, err := ambiguity.LoadViewFile(cfg.ViewPath)
	if err != nil {
		return total, err
	}
	targets, err := selectPortfolios(ctx, portfolios, cfg.PortfolioID)
	if err != nil {
		return total, err
	}
	log.Info().
		Str("view", view.Name).
		Int("functions", catalog.Len()).
		Int("configurations", len(view.Configurations)).
		Int("portfolios", len(targets)).
		Msg("Starting ambiguity check")

	oracle, closeOracle, err := openOracle(cfg, log)
	if err != nil {
		return total, err
	}
	defer closeOracle()

	registry := prometheus.NewRegistry()
	metrics, err := resolution.NewMetrics(registry)
	if err != nil {
		return total, err
	}

	pool := work.NewPool("ambiguity-check", cfg.Workers)
	pool.SetLogger(log)
	defer pool.Shutdown()

	for _, set := range view.Configurations {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		report, err := checkConfiguration(ctx, cfg, log, pool, oracle, catalog, metrics, set, targets)
		if err != nil {
			return total, err
		}
		path := tracePath(cfg.TraceOut, set.Name, len(view.Configurations) > 1)
		if err := writeTrace(path, report.Trace); err != nil {
			return total, err
		}
		log.Info().Str("configuration", set.Name).Str("path", path).Msg("Trace written")
		total = addSummaries(total, report.Summary)
	}

	if cfg.MetricsOut != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsOut, registry); err != nil {
			return total, fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return total, nil
}

// checkConfiguration runs one batch. The resolution cache lives for the batch only.
func checkConfiguration(
	ctx context.Context,
	cfg *config.Config,
	log zerolog.Logger,
	pool *work.Pool,
	oracle marketdata.AvailabilityProvider,
	catalog *function.StaticCatalog,
	metrics *resolution.Metrics,
	set *ambiguity.RequirementSet,
	targets []*portfolio.Portfolio,
) (*ambiguity.Report, error) {
	opts := []resolution.Option{
		resolution.WithGreedyCaching(cfg.GreedyCaching),
		resolution.WithMetrics(metrics),
		resolution.WithLogger(log),
	}
	if cfg.SharedCaching {
		opts = append(opts, resolution.WithSharedCache(resolution.NewCache()))
	}
	checker := resolution.NewChecker(oracle, catalog, catalog, opts...)

	runner := ambiguity.New(checker, pool,
		ambiguity.WithName(set.Name),
		ambiguity.WithLogger(log),
		ambiguity.WithContext(ctx))
	for _, pf := range targets {
		runner.CheckPortfolio(pf, set)
	}

	joinCtx := context.Background()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		joinCtx, cancel = context.WithTimeout(joinCtx, cfg.Timeout)
		defer cancel()
	}
	stopCancel := context.AfterFunc(ctx, runner.Cancel)
	defer stopCancel()

	report, err := runner.JoinAll(joinCtx)
	if err != nil {
		runner.Cancel()
		return nil, err
	}
	if shared := checker.SharedCache(); shared != nil {
		stats := shared.Stats()
		log.Debug().
			Str("configuration", set.Name).
			Int64("hits", stats.Hits).
			Int64("misses", stats.Misses).
			Int64("stores", stats.Stores).
			Msg("Resolution cache statistics")
	}
	return report, nil
}

// openOracle returns the market data oracle. With a snapshot database configured it is the
// cached snapshot; without one nothing is available as market data.
func openOracle(cfg *config.Config, log zerolog.Logger) (marketdata.AvailabilityProvider, func(), error) {
	if cfg.MarketDataDB == "" {
		log.Warn().Msg("No market data snapshot configured, only function outputs can satisfy requirements")
		return marketdata.None, func() {}, nil
	}
	db, err := database.New(database.Config{
		Path:    cfg.MarketDataDB,
		Profile: database.ProfileSnapshot,
		Name:    "marketdata",
	})
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	snapshot := marketdata.NewSnapshotProvider(db.Conn(), log)
	closeFn := func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close market data database")
		}
	}
	return marketdata.NewCachingProvider(snapshot), closeFn, nil
}

func selectPortfolios(ctx context.Context, provider *portfolio.StaticProvider, id string) ([]*portfolio.Portfolio, error) {
	ids := provider.IDs()
	if id != "" {
		ids = []string{id}
	}
	out := make([]*portfolio.Portfolio, 0, len(ids))
	for _, pid := range ids {
		pf, err := provider.Portfolio(ctx, pid)
		if err != nil {
			return nil, err
		}
		out = append(out, pf)
	}
	return out, nil
}

// tracePath inserts the configuration name before the extension when a view has several.
func tracePath(base, configuration string, perConfiguration bool) string {
	if !perConfiguration {
		return base
	}
	ext := filepath.Ext(base)
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '_'
		}
		return r
	}, configuration)
	return strings.TrimSuffix(base, ext) + "." + name + ext
}

func writeTrace(path string, t *trace.Trace) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create trace directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trace file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return trace.Encode(f, t, trace.FormatForPath(path))
}

func addSummaries(a, b ambiguity.Summary) ambiguity.Summary {
	return ambiguity.Summary{
		Submitted:       a.Submitted + b.Submitted,
		Resolved:        a.Resolved + b.Resolved,
		Unresolved:      a.Unresolved + b.Unresolved,
		Ambiguous:       a.Ambiguous + b.Ambiguous,
		DeeplyAmbiguous: a.DeeplyAmbiguous + b.DeeplyAmbiguous,
		Faults:          a.Faults + b.Faults,
	}
}
