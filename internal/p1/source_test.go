package p1

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStreamSourceCancel(t *testing.T) {
	reader, writer := io.Pipe()
	defer writer.Close()
	src := NewStreamSource(reader)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := src.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, src.Close())
}

func TestOpenTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.WriteString(conn, dsmr22)
	}()

	src, err := Open(context.Background(), SourceConfig{Kind: KindTCP, Address: ln.Addr().String()})
	require.NoError(t, err)
	defer src.Close()

	got, err := src.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, Telegram(dsmr22), got)
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open(context.Background(), SourceConfig{Kind: "usb"})
	require.Error(t, err)
}

func TestOpenSerialMissingDevice(t *testing.T) {
	_, err := Open(context.Background(), SourceConfig{
		Kind:       KindSerial,
		Device:     "/dev/does-not-exist-p1",
		BaudRate:   9600,
		SerialMode: "7E1",
	})
	require.Error(t, err)
}

func TestHomeWizardPolling(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"product_name":"P1 meter","product_type":"HWE-P1","serial":"3c39e7aabbcc","firmware_version":"5.18","api_version":"v1"}`)
		case "/api/v1/telegram":
			calls.Add(1)
			w.Header().Set("Content-Type", "text/plain")
			_, _ = io.WriteString(w, dsmr22)
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client, err := NewClient(server.URL + "/")
	require.NoError(t, err)

	info, err := client.Info(context.Background())
	require.NoError(t, err)
	require.Equal(t, "HWE-P1", info.ProductType)

	src := NewPollingSource(client, 10*time.Millisecond)
	for i := 0; i < 2; i++ {
		got, err := src.Next(context.Background())
		require.NoError(t, err)
		require.Equal(t, Telegram(dsmr22), got)
	}
	require.Equal(t, int32(2), calls.Load())

	opened, err := Open(context.Background(), SourceConfig{Kind: KindHomeWizard, BaseURL: server.URL, PollInterval: time.Millisecond})
	require.NoError(t, err)
	defer opened.Close()
	got, err := opened.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, Telegram(dsmr22), got)
}

func TestHomeWizardPollingCancel(t *testing.T) {
	src := NewPollingSource(fetcherFunc(func(context.Context) (Telegram, error) {
		return dsmr22, nil
	}), time.Hour)

	_, err := src.Next(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestHomeWizardErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "api disabled", http.StatusForbidden)
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)
	_, err = client.Telegram(context.Background())
	require.ErrorContains(t, err, "api disabled")

	_, err = Open(context.Background(), SourceConfig{Kind: KindHomeWizard, BaseURL: server.URL})
	require.ErrorContains(t, err, "homewizard info")

	_, err = NewClient("  ")
	require.Error(t, err)
}

type fetcherFunc func(context.Context) (Telegram, error)

func (f fetcherFunc) Telegram(ctx context.Context) (Telegram, error) {
	return f(ctx)
}
