package p1

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

const (
	KindSerial     = "serial"
	KindTCP        = "tcp"
	KindHomeWizard = "homewizard"

	dialTimeout = 10 * time.Second
)

// Source yields telegrams until it fails or the context ends.
type Source interface {
	Next(ctx context.Context) (Telegram, error)
	Close() error
}

// SourceConfig selects and configures a telegram source.
type SourceConfig struct {
	Kind         string
	Device       string
	BaudRate     int
	SerialMode   string
	Address      string
	BaseURL      string
	PollInterval time.Duration
}

// Open connects to the configured source.
func Open(ctx context.Context, cfg SourceConfig) (Source, error) {
	switch cfg.Kind {
	case KindSerial:
		port, err := openSerial(cfg.Device, cfg.BaudRate, cfg.SerialMode)
		if err != nil {
			return nil, err
		}
		return NewStreamSource(port), nil
	case KindTCP:
		dialer := net.Dialer{Timeout: dialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", cfg.Address, err)
		}
		return NewStreamSource(conn), nil
	case KindHomeWizard:
		client, err := NewClient(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		// Fails fast when the meter is unreachable or has the local API off.
		if _, err := client.Info(ctx); err != nil {
			return nil, fmt.Errorf("homewizard info: %w", err)
		}
		return NewPollingSource(client, cfg.PollInterval), nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Kind)
	}
}

// StreamSource frames telegrams from a byte stream such as a serial port.
type StreamSource struct {
	rc        io.ReadCloser
	framer    *Framer
	closeOnce sync.Once
	closeErr  error
}

func NewStreamSource(rc io.ReadCloser) *StreamSource {
	return &StreamSource{rc: rc, framer: NewFramer(rc)}
}

type frameResult struct {
	telegram Telegram
	err      error
}

// Next reads the next telegram. Cancelling ctx closes the stream, so the
// source is unusable afterwards.
func (s *StreamSource) Next(ctx context.Context) (Telegram, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	done := make(chan frameResult, 1)
	go func() {
		t, err := s.framer.Next()
		done <- frameResult{telegram: t, err: err}
	}()

	select {
	case res := <-done:
		return res.telegram, res.err
	case <-ctx.Done():
		_ = s.Close()
		return "", ctx.Err()
	}
}

func (s *StreamSource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.rc.Close()
	})
	return s.closeErr
}

// telegramFetcher is satisfied by *Client.
type telegramFetcher interface {
	Telegram(ctx context.Context) (Telegram, error)
}

// PollingSource fetches a telegram from a HomeWizard meter every interval.
type PollingSource struct {
	client   telegramFetcher
	interval time.Duration
	last     time.Time
}

func NewPollingSource(client telegramFetcher, interval time.Duration) *PollingSource {
	return &PollingSource{client: client, interval: interval}
}

func (s *PollingSource) Next(ctx context.Context) (Telegram, error) {
	if !s.last.IsZero() {
		if wait := time.Until(s.last.Add(s.interval)); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	s.last = time.Now()
	return s.client.Telegram(ctx)
}

func (s *PollingSource) Close() error {
	return nil
}
