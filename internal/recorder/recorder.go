// Package recorder turns P1 telegrams into data files and pushes the
// results to the optional archive and MQTT sinks.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joshp123/smartmeter/internal/archive"
	"github.com/joshp123/smartmeter/internal/meter"
	"github.com/joshp123/smartmeter/internal/p1"
)

// HealthService is the service name the recorder reports health under.
const HealthService = "smartmeter.Recorder"

const (
	defaultMinBackoff    = time.Second
	defaultMaxBackoff    = 30 * time.Second
	defaultArchiveWindow = 30 * time.Second
)

// Opener connects to the telegram source.
type Opener func(ctx context.Context) (p1.Source, error)

type Publisher interface {
	Publish(payload []byte) error
}

// HealthReporter is satisfied by *health.Server.
type HealthReporter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

type Options struct {
	Open   Opener
	Files  meter.Files
	Meter  *meter.Meter
	Logger *log.Logger

	// WritePrimary also writes p1.json on every telegram.
	WritePrimary bool

	Archive   archive.Store
	Publisher Publisher
	Health    HealthReporter
	Metrics   *Metrics

	MinBackoff time.Duration
	MaxBackoff time.Duration
	Now        func() time.Time
}

// Recorder owns the meter state. Run and Handle must not be called
// concurrently.
type Recorder struct {
	opts  Options
	meter *meter.Meter
}

func New(opts Options) (*Recorder, error) {
	if opts.Open == nil {
		return nil, fmt.Errorf("recorder needs a source")
	}
	if opts.Meter == nil {
		return nil, fmt.Errorf("recorder needs a meter")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = defaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(defaultMaxBackoff, opts.MinBackoff)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Recorder{opts: opts, meter: opts.Meter}, nil
}

// Run reads telegrams until ctx is cancelled, reopening the source with
// exponential backoff whenever it fails.
func (r *Recorder) Run(ctx context.Context) error {
	logger := r.opts.Logger
	backoff := r.opts.MinBackoff
	first := true

	for {
		if !first {
			r.opts.Metrics.reconnect()
		}
		first = false

		err := r.consume(ctx, func() { backoff = r.opts.MinBackoff })
		if ctx.Err() != nil {
			r.setHealth(healthpb.HealthCheckResponse_NOT_SERVING)
			return nil
		}

		r.setHealth(healthpb.HealthCheckResponse_NOT_SERVING)
		r.opts.Metrics.source(false)
		logger.Warn("telegram source failed", "error", err, "retry_in", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff = min(backoff*2, r.opts.MaxBackoff)
	}
}

// consume opens the source and handles telegrams until the source fails.
// onTelegram is called for every telegram received.
func (r *Recorder) consume(ctx context.Context, onTelegram func()) error {
	src, err := r.opts.Open(ctx)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	r.opts.Metrics.source(true)
	r.opts.Logger.Info("telegram source connected")

	for {
		telegram, err := src.Next(ctx)
		if err != nil {
			return err
		}
		onTelegram()
		r.setHealth(healthpb.HealthCheckResponse_SERVING)

		if err := r.Handle(ctx, telegram); err != nil {
			r.opts.Logger.Warn("telegram not recorded", "error", err)
		}
	}
}

// Handle parses one telegram and applies it. Rejected telegrams leave the
// state untouched.
func (r *Recorder) Handle(ctx context.Context, telegram p1.Telegram) error {
	reading, err := p1.Parse(telegram)
	if err != nil {
		r.opts.Metrics.rejected(err)
		return fmt.Errorf("parse telegram: %w", err)
	}

	now := r.opts.Now()
	r.opts.Metrics.reading(reading, now)

	outputs := r.meter.Update(now, reading)
	rolled := false
	var errs []error
	for _, out := range outputs {
		if out.Kind == meter.KindPrimary {
			if err := r.publish(out); err != nil {
				errs = append(errs, err)
			}
			if !r.opts.WritePrimary {
				continue
			}
		}

		_, data, err := r.opts.Files.Write(out)
		if err != nil {
			r.opts.Metrics.failed("write")
			errs = append(errs, err)
			continue
		}
		r.opts.Metrics.written(out.Kind.String())

		switch out.Kind {
		case meter.KindHourly, meter.KindDaily:
			rolled = true
			r.opts.Logger.Info("data set written", "kind", out.Kind, "name", out.Name)
			errs = append(errs, r.archive(ctx, out, data))
		case meter.KindMain:
			// The main set is archived once per hour so a restore resumes
			// the running day.
			if rolled {
				errs = append(errs, r.archive(ctx, out, data))
			}
		}
	}
	return errors.Join(errs...)
}

func (r *Recorder) publish(out meter.Output) error {
	if r.opts.Publisher == nil {
		return nil
	}
	data, err := json.Marshal(out.Value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", out.Name, err)
	}
	if err := r.opts.Publisher.Publish(data); err != nil {
		r.opts.Metrics.failed("publish")
		return err
	}
	return nil
}

func (r *Recorder) archive(ctx context.Context, out meter.Output, data []byte) error {
	if r.opts.Archive == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, defaultArchiveWindow)
	defer cancel()

	key := archive.Key(out.Name, out.Kind == meter.KindDaily)
	if err := r.opts.Archive.Save(ctx, key, data); err != nil {
		r.opts.Metrics.failed("archive")
		return fmt.Errorf("archive %s: %w", key, err)
	}
	return nil
}

func (r *Recorder) setHealth(status healthpb.HealthCheckResponse_ServingStatus) {
	if r.opts.Health == nil {
		return
	}
	r.opts.Health.SetServingStatus(HealthService, status)
}
