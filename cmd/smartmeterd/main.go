package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/joshp123/smartmeter/internal/config"
	"github.com/joshp123/smartmeter/internal/dataset"
	"github.com/joshp123/smartmeter/internal/logging"
	"github.com/joshp123/smartmeter/internal/server"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	flags := flag.NewFlagSet("smartmeterd", flag.ExitOnError)
	configPath := flags.String("config", envOrDefault("SMARTMETER_CONFIG", config.DefaultPath), "Path to config.pbtxt")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("load config", err)
	}

	logger, closer, err := logging.Open(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		fatal("open log", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("smartmeterd stopped", "error", err)
		_ = closer.Close()
		os.Exit(1)
	}
	logger.Info("smartmeterd stopped")
	_ = closer.Close()
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	logger.Info("starting smartmeterd",
		"version", version,
		"data_dir", cfg.Data.BaseDir,
		"http_addr", cfg.Core.HTTPAddr,
		"grpc_addr", cfg.Core.GRPCAddr,
	)

	store := dataset.NewStore(cfg.Data.BaseDir, cfg.Data.StrictSetNames)
	datasetMetrics := dataset.NewMetrics()

	grpcServer, err := server.NewGRPCServer(cfg.Core.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	if err := dataset.RegisterDataSetsService(grpcServer.Server, store, datasetMetrics, logger); err != nil {
		return fmt.Errorf("register data sets: %w", err)
	}

	reader, err := newReader(ctx, cfg, grpcServer.Health, logger)
	if err != nil {
		grpcServer.Server.Stop()
		return err
	}
	defer reader.Close()

	collectors := datasetMetrics.Collectors()
	collectors = append(collectors, reader.Collectors()...)
	metricsRegistry := server.MetricsRegistry(version, collectors...)

	missingStatus := http.StatusOK
	if cfg.Data.MissingStatusNotFound {
		missingStatus = http.StatusNotFound
	}
	dataHandler := dataset.NewHandler(store, dataset.HandlerOptions{
		Metrics:       datasetMetrics,
		Logger:        logger,
		MissingStatus: missingStatus,
	})

	httpMux := http.NewServeMux()
	httpMux.Handle("/data", dataHandler)
	httpMux.Handle("/data.php", dataHandler)
	httpMux.HandleFunc("/health", server.HealthHandler)
	httpMux.Handle("/metrics", server.MetricsHandler(metricsRegistry))
	httpMux.Handle("/dashboards/", server.DashboardsHandler(server.Dashboards()))

	httpServer := server.NewHTTPServer(cfg.Core.HTTPAddr, httpMux, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.Core.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc listening", "addr", grpcServer.Listener.Addr().String())
		if err := grpcServer.Serve(); err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return reader.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		grpcServer.Stop(shutdownCtx)
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
