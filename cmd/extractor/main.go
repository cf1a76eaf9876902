package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aluiziolira/go-extract-catalog/config"
	"github.com/aluiziolira/go-extract-catalog/distributor"
	"github.com/aluiziolira/go-extract-catalog/export"
	"github.com/aluiziolira/go-extract-catalog/extract"
	"github.com/aluiziolira/go-extract-catalog/models"
	"github.com/aluiziolira/go-extract-catalog/protocol"
	"github.com/aluiziolira/go-extract-catalog/session"
	"github.com/aluiziolira/go-extract-catalog/workqueue"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	defaultCfg := config.DefaultConfig()
	outputDefault := defaultCfg.OutputDir
	if value, ok := config.EnvString("EXTRACT_OUTPUT"); ok {
		outputDefault = value
	}
	profilesDefault := defaultCfg.ProfilesFile
	if value, ok := config.EnvString("EXTRACT_PROFILES"); ok {
		profilesDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("EXTRACT_METRICS_ADDR"); ok {
		metricsDefault = value
	}
	batchDefault := 50
	batchEnv, _, batchEnvErr := config.EnvInt("EXTRACT_BATCH")
	if batchEnvErr == nil && batchEnv > 0 {
		batchDefault = batchEnv
	}

	profilesFile := flag.String("profiles", profilesDefault, "Distributor profiles YAML file")
	distributors := flag.String("distributors", "", "Comma-separated distributor identifiers (default: all registered)")
	mode := flag.String("mode", "full", "Extraction mode: full, incremental, or price-only")
	category := flag.String("category", "", "Restrict extraction to one category")
	query := flag.String("query", "", "Restrict extraction to a search query")
	batchSize := flag.Int("batch", batchDefault, "Batch size hint for listing calls")
	outputDir := flag.String("output", outputDefault, "Output directory for run artifacts")
	jobTimeout := flag.Duration("timeout", defaultCfg.JobTimeout, "Per-job timeout")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	listenAddr := flag.String("listen", "", "Serve the tool-invocation API on this address instead of running one-shot jobs")
	noPartial := flag.Bool("no-partial", false, "Disable partial exports on fatal listing errors")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if batchEnvErr != nil {
		slog.Error("invalid environment override", slog.Any("error", batchEnvErr))
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	cfg.OutputDir = *outputDir
	cfg.ProfilesFile = *profilesFile
	cfg.MetricsAddr = *metricsAddr
	cfg.JobTimeout = *jobTimeout
	cfg.Verbose = *verbose
	cfg.PartialExports = !*noPartial
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	jobMode := models.ExtractionMode(strings.ToLower(*mode))
	if !jobMode.Valid() {
		slog.Error("invalid mode", slog.String("mode", *mode))
		os.Exit(1)
	}

	profiles, err := config.LoadProfiles(cfg.ProfilesFile)
	if err != nil {
		slog.Error("loading profiles", slog.Any("error", err))
		os.Exit(1)
	}
	selected, err := selectProfiles(profiles, *distributors)
	if err != nil {
		slog.Error("selecting distributors", slog.Any("error", err))
		os.Exit(1)
	}

	sink, err := export.NewSink(cfg.OutputDir)
	if err != nil {
		slog.Error("creating export sink", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := workqueue.NewMetrics()
	orchestrators := make(map[string]*extract.Orchestrator, len(selected))
	for identifier, profile := range selected {
		adapter, err := distributor.Open(profile)
		if err != nil {
			slog.Error("opening adapter",
				slog.String("distributor", identifier),
				slog.Any("error", err),
			)
			os.Exit(1)
		}
		orch := extract.New(profile, adapter, sink, metrics)
		orch.PartialExports = cfg.PartialExports
		orchestrators[identifier] = orch
	}
	defer func() {
		for identifier, orch := range orchestrators {
			if err := orch.Close(); err != nil {
				slog.Error("closing adapter",
					slog.String("distributor", identifier),
					slog.Any("error", err),
				)
			}
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsServer := startMetricsServer(cfg.MetricsAddr, metrics)
	defer shutdownServer(metricsServer, "metrics")

	if *listenAddr != "" {
		runServer(ctx, *listenAddr, orchestrators)
		return
	}

	filters := models.Filters{Category: *category, Query: *query}
	runJobs(ctx, orchestrators, jobMode, filters, *batchSize, cfg.JobTimeout, sink)
}

func selectProfiles(profiles map[string]*config.DistributorProfile, csv string) (map[string]*config.DistributorProfile, error) {
	if strings.TrimSpace(csv) == "" {
		return profiles, nil
	}
	selected := make(map[string]*config.DistributorProfile)
	for _, raw := range strings.Split(csv, ",") {
		identifier := strings.TrimSpace(raw)
		if identifier == "" {
			continue
		}
		profile, ok := profiles[identifier]
		if !ok {
			return nil, fmt.Errorf("unknown distributor %q (profiles declare: %s)", identifier, strings.Join(profileNames(profiles), ", "))
		}
		selected[identifier] = profile
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no distributors selected")
	}
	return selected, nil
}

func profileNames(profiles map[string]*config.DistributorProfile) []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	return names
}

func credentialsFor(identifier string) (session.Credentials, error) {
	upper := strings.ToUpper(strings.ReplaceAll(identifier, "-", "_"))
	email, ok := config.EnvString("EXTRACT_" + upper + "_EMAIL")
	if !ok {
		email, _ = config.EnvString("EXTRACT_EMAIL")
	}
	password, ok := config.EnvString("EXTRACT_" + upper + "_PASSWORD")
	if !ok {
		password, _ = config.EnvString("EXTRACT_PASSWORD")
	}
	if email == "" || password == "" {
		return session.Credentials{}, fmt.Errorf("no credentials for %s (set EXTRACT_%s_EMAIL/EXTRACT_%s_PASSWORD or EXTRACT_EMAIL/EXTRACT_PASSWORD)", identifier, upper, upper)
	}
	return session.Credentials{Email: email, Password: password}, nil
}

func runJobs(ctx context.Context, orchestrators map[string]*extract.Orchestrator, mode models.ExtractionMode, filters models.Filters, batchSize int, timeout time.Duration, sink *export.Sink) {
	type outcome struct {
		identifier string
		job        *models.ExtractionJob
		result     *models.ExtractionResult
		err        error
		retries    int
	}

	start := time.Now()
	results := make([]outcome, 0, len(orchestrators))
	var mu sync.Mutex
	var wg sync.WaitGroup

	// Independent sessions run concurrently; each orchestrator's queue
	// bounds parallelism toward its own portal.
	for identifier, orch := range orchestrators {
		creds, err := credentialsFor(identifier)
		if err != nil {
			slog.Error("credentials", slog.Any("error", err))
			mu.Lock()
			results = append(results, outcome{identifier: identifier, err: err})
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(identifier string, orch *extract.Orchestrator, creds session.Credentials) {
			defer wg.Done()

			jobCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			job, err := orch.NewJob(mode, filters, batchSize)
			if err != nil {
				mu.Lock()
				results = append(results, outcome{identifier: identifier, err: err})
				mu.Unlock()
				return
			}

			result, err := orch.Run(jobCtx, job, creds)
			mu.Lock()
			results = append(results, outcome{
				identifier: identifier,
				job:        job,
				result:     result,
				err:        err,
				retries:    orch.Queue().TotalRetries(),
			})
			mu.Unlock()
		}(identifier, orch, creds)
	}
	wg.Wait()

	duration := time.Since(start)
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Extraction complete")
	failed := 0
	for _, o := range results {
		switch {
		case o.err != nil && o.result != nil:
			failed++
			fmt.Printf("  %-12s FAILED [%s] (partial export: %d products, %d retries): %v\n",
				o.identifier, distributor.ClassLabel(o.err), o.result.TotalProducts, o.retries, o.err)
		case o.err != nil:
			failed++
			fmt.Printf("  %-12s FAILED [%s] (%d retries): %v\n",
				o.identifier, distributor.ClassLabel(o.err), o.retries, o.err)
		default:
			fmt.Printf("  %-12s %d products, %d categories, median %s %.2f, %.1f items/sec (%d retries)\n",
				o.identifier, o.result.TotalProducts, len(o.result.CategoryCounts),
				currencyOf(o.result), o.result.PriceStats.Median,
				itemsPerSecond(o.result), o.retries)
			fmt.Printf("  %-12s artifacts: %s, %s\n", "",
				sink.JSONPath(o.job.ID), sink.CSVPath(o.job.ID))
		}
	}
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Println(separator)

	if failed > 0 {
		os.Exit(1)
	}
}

func itemsPerSecond(result *models.ExtractionResult) float64 {
	if result.DurationMs <= 0 {
		return 0
	}
	return float64(result.TotalProducts) / (float64(result.DurationMs) / 1000)
}

func currencyOf(result *models.ExtractionResult) string {
	for _, p := range result.Products {
		if p.Price.Currency != "" {
			return p.Price.Currency
		}
	}
	return ""
}

func runServer(ctx context.Context, addr string, orchestrators map[string]*extract.Orchestrator) {
	handlers := make(map[string]*protocol.Handler, len(orchestrators))
	for identifier, orch := range orchestrators {
		handler, err := protocol.NewHandler(orch)
		if err != nil {
			slog.Error("creating protocol handler",
				slog.String("distributor", identifier),
				slog.Any("error", err),
			)
			os.Exit(1)
		}
		handlers[identifier] = handler
	}

	server := &http.Server{Addr: addr, Handler: protocol.NewServer(handlers)}
	go func() {
		slog.Info("tool-invocation API listening", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server failed", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")
	shutdownServer(server, "api")
}

func startMetricsServer(addr string, metrics *workqueue.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func shutdownServer(server *http.Server, name string) {
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error(name+" server shutdown failed", slog.Any("error", err))
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
