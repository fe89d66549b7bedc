package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joshp123/smartmeter/internal/archive"
	"github.com/joshp123/smartmeter/internal/config"
	"github.com/joshp123/smartmeter/internal/meter"
	"github.com/joshp123/smartmeter/internal/p1"
	"github.com/joshp123/smartmeter/internal/publish"
	"github.com/joshp123/smartmeter/internal/recorder"
)

// reader is the optional producer half of the daemon. Without a reader
// section in the config it does nothing and the daemon only serves files.
type reader struct {
	recorder  *recorder.Recorder
	metrics   *recorder.Metrics
	publisher *publish.Publisher
}

func newReader(ctx context.Context, cfg *config.Config, health recorder.HealthReporter, logger *log.Logger) (*reader, error) {
	if cfg.Reader == nil {
		logger.Info("no reader configured, serving existing data files only")
		return &reader{}, nil
	}
	logger = logger.WithPrefix("reader")

	backup, err := newArchive(cfg)
	if err != nil {
		return nil, err
	}

	files := meter.Files{MainDir: cfg.Data.BaseDir, DailyDir: cfg.Data.DailyDir}
	if err := files.Prepare(ctx, backup, logger); err != nil {
		return nil, err
	}
	m, err := files.Load(time.Now(), logger)
	if err != nil {
		return nil, err
	}

	r := &reader{metrics: recorder.NewMetrics()}
	var publisher recorder.Publisher
	if cfg.MQTT != nil {
		r.publisher, err = publish.Connect(cfg.MQTT)
		if err != nil {
			return nil, err
		}
		publisher = r.publisher
		logger.Info("publishing to mqtt", "broker", cfg.MQTT.Broker, "topic", cfg.MQTT.Topic)
	}

	sourceCfg := p1.SourceConfig{
		Kind:         cfg.Reader.Source,
		Device:       cfg.Reader.Device,
		BaudRate:     cfg.Reader.BaudRate,
		SerialMode:   cfg.Reader.SerialMode,
		Address:      cfg.Reader.Address,
		BaseURL:      cfg.Reader.BaseURL,
		PollInterval: cfg.Reader.PollInterval,
	}
	health.SetServingStatus(recorder.HealthService, healthpb.HealthCheckResponse_NOT_SERVING)

	opts := recorder.Options{
		Open: func(ctx context.Context) (p1.Source, error) {
			return p1.Open(ctx, sourceCfg)
		},
		Files:        files,
		Meter:        m,
		Logger:       logger,
		WritePrimary: cfg.Data.WritePrimaryValues,
		Archive:      backup,
		Publisher:    publisher,
		Health:       health,
		Metrics:      r.metrics,
	}
	r.recorder, err = recorder.New(opts)
	if err != nil {
		r.Close()
		return nil, err
	}
	logger.Info("reading telegrams", "source", sourceCfg.Kind)
	return r, nil
}

// newArchive combines the configured backup targets. It returns nil when
// none is configured.
func newArchive(cfg *config.Config) (archive.Store, error) {
	var stores archive.Multi
	if cfg.Data.BackupDir != "" {
		dir, err := archive.NewDirStore(cfg.Data.BackupDir)
		if err != nil {
			return nil, err
		}
		stores = append(stores, dir)
	}
	if cfg.Archive != nil {
		s3, err := archive.NewS3Store(cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		stores = append(stores, s3)
	}

	switch len(stores) {
	case 0:
		return nil, nil
	case 1:
		return stores[0], nil
	default:
		return stores, nil
	}
}

func (r *reader) Run(ctx context.Context) error {
	if r.recorder == nil {
		return nil
	}
	return r.recorder.Run(ctx)
}

func (r *reader) Collectors() []prometheus.Collector {
	if r.metrics == nil {
		return nil
	}
	return r.metrics.Collectors()
}

func (r *reader) Close() {
	if r.publisher != nil {
		r.publisher.Close()
	}
}
