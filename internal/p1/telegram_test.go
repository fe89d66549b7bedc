package p1

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// dsmr22 is a DSMR 2.2 telegram as sent by a Landis+Gyr ZCF110 on 9600 7E1.
const dsmr22 = "/ISk5\\2ZCF110-1000\r\n" +
	"\r\n" +
	"0-0:96.1.1(4B384547303034303436333935353037)\r\n" +
	"1-0:1.8.1(12345.678*kWh)\r\n" +
	"1-0:1.8.2(00987.654*kWh)\r\n" +
	"1-0:2.8.1(00000.000*kWh)\r\n" +
	"1-0:2.8.2(00000.000*kWh)\r\n" +
	"0-0:96.14.0(0002)\r\n" +
	"1-0:1.7.0(0000.57*kW)\r\n" +
	"1-0:2.7.0(0000.00*kW)\r\n" +
	"0-0:17.0.0(999*A)\r\n" +
	"0-0:96.3.10(1)\r\n" +
	"0-0:96.13.1()\r\n" +
	"0-0:96.13.0()\r\n" +
	"0-1:24.1.0(3)\r\n" +
	"0-1:96.1.0(3238303131303031323133303531363133)\r\n" +
	"0-1:24.3.0(130622120000)(00)(60)(1)(0-1:24.2.1)(m3)\r\n" +
	"(02345.678)\r\n" +
	"0-1:24.4.0(1)\r\n" +
	"!\r\n"

func dsmr5(t *testing.T) Telegram {
	t.Helper()
	body := "/XMX5LGBBFFB231215493\r\n" +
		"\r\n" +
		"1-3:0.2.8(50)\r\n" +
		"0-0:1.0.0(240115143005W)\r\n" +
		"1-0:1.8.1(001234.567*kWh)\r\n" +
		"1-0:1.8.2(002345.678*kWh)\r\n" +
		"1-0:2.8.1(000012.345*kWh)\r\n" +
		"1-0:2.8.2(000023.456*kWh)\r\n" +
		"0-0:96.14.0(0001)\r\n" +
		"1-0:1.7.0(00.412*kW)\r\n" +
		"1-0:2.7.0(00.000*kW)\r\n" +
		"1-0:99.97.0(1)(0-0:96.7.19)(170101000001W)(2147483647*s)\r\n" +
		"0-1:24.2.1(240115143000W)(01234.567*m3)\r\n" +
		"!"
	return Telegram(fmt.Sprintf("%s%04X\r\n", body, crc16([]byte(body))))
}

func TestCRC16CheckValue(t *testing.T) {
	require.Equal(t, uint16(0xBB3D), crc16([]byte("123456789")))
}

func TestParseDSMR22(t *testing.T) {
	r, err := Parse(dsmr22)
	require.NoError(t, err)

	require.Equal(t, int64(12345678), r.ImportOffPeakWh)
	require.Equal(t, int64(987654), r.ImportPeakWh)
	require.Equal(t, int64(12345678+987654), r.ImportWh())
	require.Equal(t, int64(570), r.PowerW)
	require.Equal(t, int64(0), r.ExportPowerW)
	require.NotNil(t, r.Tariff)
	require.Equal(t, 2, *r.Tariff)
	require.NotNil(t, r.GasDm3)
	require.Equal(t, int64(2345678), *r.GasDm3)
	require.Nil(t, r.MeterTime)
}

func TestParseDSMR5(t *testing.T) {
	r, err := Parse(dsmr5(t))
	require.NoError(t, err)

	require.Equal(t, int64(1234567), r.ImportOffPeakWh)
	require.Equal(t, int64(2345678), r.ImportPeakWh)
	require.Equal(t, int64(12345), r.ExportOffPeakWh)
	require.Equal(t, int64(23456), r.ExportPeakWh)
	require.Equal(t, int64(412), r.PowerW)
	require.NotNil(t, r.GasDm3)
	require.Equal(t, int64(1234567), *r.GasDm3)
	require.NotNil(t, r.MeterTime)
	require.Equal(t, time.Date(2024, 1, 15, 14, 30, 5, 0, time.Local), *r.MeterTime)
}

func TestParseChecksumWithoutCarriageReturns(t *testing.T) {
	raw := strings.ReplaceAll(string(dsmr5(t)), "\r\n", "\n")
	_, err := Parse(Telegram(raw))
	require.NoError(t, err)
}

func TestParseChecksumMismatch(t *testing.T) {
	raw := strings.Replace(string(dsmr5(t)), "00.412*kW", "00.413*kW", 1)
	_, err := Parse(Telegram(raw))
	require.True(t, errors.Is(err, ErrChecksum), "got %v", err)
}

func TestParseIncomplete(t *testing.T) {
	raw := strings.Replace(dsmr22, "1-0:1.7.0(0000.57*kW)\r\n", "", 1)
	_, err := Parse(Telegram(raw))
	require.True(t, errors.Is(err, ErrIncomplete), "got %v", err)

	_, err = Parse("/ISk5\\2ZCF110-1000\r\n1-0:1.8.1(1.0*kWh)\r\n")
	require.True(t, errors.Is(err, ErrIncomplete), "got %v", err)
}

func TestParseBadValue(t *testing.T) {
	raw := strings.Replace(dsmr22, "1-0:1.8.2(00987.654*kWh)", "1-0:1.8.2(garbage*kWh)", 1)
	_, err := Parse(Telegram(raw))
	require.Error(t, err)
	require.Contains(t, err.Error(), "1-0:1.8.2")
}

func TestMilliRounds(t *testing.T) {
	for value, want := range map[string]int64{
		"0000.57*kW":    570,
		"00.290*kW":     290,
		"12345.678*kWh": 12345678,
		"00001.001":     1001,
	} {
		got, err := milli(value)
		require.NoError(t, err)
		require.Equal(t, want, got, value)
	}
}
