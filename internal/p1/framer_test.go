package p1

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFramerAlignsAndSplits(t *testing.T) {
	partial := "1-0:1.8.2(00987.654*kWh)\r\n1-0:1.7.0(0000.57*kW)\r\n!\r\n"
	stream := partial + dsmr22 + dsmr22
	framer := NewFramer(strings.NewReader(stream))

	first, err := framer.Next()
	require.NoError(t, err)
	require.Equal(t, Telegram(dsmr22), first)

	second, err := framer.Next()
	require.NoError(t, err)
	require.Equal(t, Telegram(dsmr22), second)

	_, err = framer.Next()
	require.True(t, errors.Is(err, io.EOF))
}

func TestFramerRestartsOnNewHeader(t *testing.T) {
	truncated := "/ISk5\\2ZCF110-1000\r\n1-0:1.8.1(12345.678*kWh)\r\n"
	framer := NewFramer(strings.NewReader(truncated + dsmr22))

	got, err := framer.Next()
	require.NoError(t, err)
	require.Equal(t, Telegram(dsmr22), got)
}

func TestFramerTrailerWithoutNewline(t *testing.T) {
	raw := strings.TrimSuffix(dsmr22, "\r\n")
	framer := NewFramer(strings.NewReader(raw))

	got, err := framer.Next()
	require.NoError(t, err)
	require.Equal(t, Telegram(raw), got)
}

func TestFramerDropsOversizedGarbage(t *testing.T) {
	garbage := "/" + strings.Repeat("x\n", maxTelegramSize)
	framer := NewFramer(strings.NewReader(garbage + dsmr22))

	got, err := framer.Next()
	require.NoError(t, err)
	require.Equal(t, Telegram(dsmr22), got)
}
