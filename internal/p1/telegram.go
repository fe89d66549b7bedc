// Package p1 reads and parses DSMR P1 telegrams from a smart meter.
package p1

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrIncomplete = errors.New("telegram incomplete")
	ErrChecksum   = errors.New("telegram checksum mismatch")
)

// Telegram is one raw P1 message, from the "/" header through the "!" trailer.
type Telegram string

// Reading holds the values taken from one telegram. Energy is in Wh, power
// in W and gas in dm3.
type Reading struct {
	MeterTime       *time.Time `json:"meter_time,omitempty"`
	Tariff          *int       `json:"tariff,omitempty"`
	PowerW          int64      `json:"power_w"`
	ExportPowerW    int64      `json:"export_power_w"`
	ImportOffPeakWh int64      `json:"import_off_peak_wh"`
	ImportPeakWh    int64      `json:"import_peak_wh"`
	ExportOffPeakWh int64      `json:"export_off_peak_wh"`
	ExportPeakWh    int64      `json:"export_peak_wh"`
	GasDm3          *int64     `json:"gas_dm3,omitempty"`
}

// ImportWh is the total imported energy over both tariffs.
func (r Reading) ImportWh() int64 {
	return r.ImportOffPeakWh + r.ImportPeakWh
}

const (
	obisImportOffPeak = "1-0:1.8.1"
	obisImportPeak    = "1-0:1.8.2"
	obisExportOffPeak = "1-0:2.8.1"
	obisExportPeak    = "1-0:2.8.2"
	obisPower         = "1-0:1.7.0"
	obisExportPower   = "1-0:2.7.0"
	obisTariff        = "0-0:96.14.0"
	obisTimestamp     = "0-0:1.0.0"
	obisGasLegacy     = "0-1:24.3.0"
	obisGas           = "0-1:24.2.1"
)

var (
	obisLineRe = regexp.MustCompile(`^(\d+-\d+:\d+\.\d+\.\d+)((?:\([^)]*\))+)$`)
	obisValRe  = regexp.MustCompile(`\(([^)]*)\)`)
)

// Parse extracts a Reading from a telegram. Import totals and current power
// are required; everything else is optional.
func Parse(raw Telegram) (Reading, error) {
	if err := verifyChecksum(string(raw)); err != nil {
		return Reading{}, err
	}

	var (
		r                              Reading
		haveOffPeak, havePeak, havePwr bool
	)

	lines := strings.Split(strings.ReplaceAll(string(raw), "\r", ""), "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		match := obisLineRe.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		values := obisValues(match[2])
		last := values[len(values)-1]

		var err error
		switch match[1] {
		case obisImportOffPeak:
			r.ImportOffPeakWh, err = milli(last)
			haveOffPeak = err == nil
		case obisImportPeak:
			r.ImportPeakWh, err = milli(last)
			havePeak = err == nil
		case obisExportOffPeak:
			r.ExportOffPeakWh, err = milli(last)
		case obisExportPeak:
			r.ExportPeakWh, err = milli(last)
		case obisPower:
			r.PowerW, err = milli(last)
			havePwr = err == nil
		case obisExportPower:
			r.ExportPowerW, err = milli(last)
		case obisTariff:
			var tariff int
			if tariff, err = strconv.Atoi(last); err == nil {
				r.Tariff = &tariff
			}
		case obisTimestamp:
			var ts time.Time
			if ts, err = parseMeterTime(last); err == nil {
				r.MeterTime = &ts
			}
		case obisGasLegacy:
			// DSMR 2.2 puts the gas reading on the following line.
			if i+1 < len(lines) {
				next := strings.Trim(strings.TrimSpace(lines[i+1]), "()")
				var gas int64
				if gas, err = milli(next); err == nil {
					r.GasDm3 = &gas
					i++
				}
			}
		case obisGas:
			var gas int64
			if gas, err = milli(last); err == nil {
				r.GasDm3 = &gas
			}
		}
		if err != nil {
			return Reading{}, fmt.Errorf("parse %s %q: %w", match[1], last, err)
		}
	}

	switch {
	case !haveOffPeak:
		return Reading{}, fmt.Errorf("%w: missing %s", ErrIncomplete, obisImportOffPeak)
	case !havePeak:
		return Reading{}, fmt.Errorf("%w: missing %s", ErrIncomplete, obisImportPeak)
	case !havePwr:
		return Reading{}, fmt.Errorf("%w: missing %s", ErrIncomplete, obisPower)
	}
	return r, nil
}

func obisValues(groups string) []string {
	matches := obisValRe.FindAllStringSubmatch(groups, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// milli parses "00123.456*kWh" style values and scales them by 1000.
func milli(value string) (int64, error) {
	if idx := strings.IndexByte(value, '*'); idx >= 0 {
		value = value[:idx]
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f * 1000)), nil
}

func parseMeterTime(value string) (time.Time, error) {
	value = strings.TrimRight(value, "SW")
	return time.ParseInLocation("060102150405", value, time.Local)
}

// verifyChecksum checks the CRC16 after "!" when the meter sends one
// (DSMR 4+). Sources that drop carriage returns are checked again with CRLF
// line endings restored.
func verifyChecksum(raw string) error {
	idx := strings.LastIndexByte(raw, '!')
	if idx < 0 {
		return fmt.Errorf("%w: no trailer", ErrIncomplete)
	}
	sum := strings.TrimSpace(raw[idx+1:])
	if sum == "" {
		return nil
	}
	want, err := strconv.ParseUint(sum, 16, 16)
	if err != nil {
		return fmt.Errorf("%w: bad checksum %q", ErrChecksum, sum)
	}

	start := strings.IndexByte(raw, '/')
	if start < 0 || start > idx {
		return fmt.Errorf("%w: no header", ErrIncomplete)
	}
	body := raw[start : idx+1]
	if uint64(crc16([]byte(body))) == want {
		return nil
	}
	if !strings.Contains(body, "\r\n") {
		normalized := strings.ReplaceAll(body, "\n", "\r\n")
		if uint64(crc16([]byte(normalized))) == want {
			return nil
		}
	}
	return fmt.Errorf("%w: want %04X", ErrChecksum, want)
}

// crc16 is CRC-16/ARC as specified by DSMR 4.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
