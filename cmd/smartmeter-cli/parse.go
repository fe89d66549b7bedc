package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshp123/smartmeter/internal/p1"
)

func newParseCmd() *cobra.Command {
	var table bool
	cmd := &cobra.Command{
		Use:   "parse <telegram-file|->",
		Short: "Parse a P1 telegram locally and print the reading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				raw []byte
				err error
			)
			if args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read telegram: %w", err)
			}

			reading, err := p1.Parse(p1.Telegram(raw))
			if err != nil {
				return err
			}

			out := outputMode{w: cmd.OutOrStdout()}
			if table {
				return out.table(readingRows(reading))
			}
			return out.printJSON(reading)
		},
	}
	cmd.Flags().BoolVar(&table, "table", false, "Print a table instead of JSON")
	return cmd
}

func readingRows(r p1.Reading) [][]string {
	rows := [][]string{
		{"power_w", fmt.Sprint(r.PowerW)},
		{"export_power_w", fmt.Sprint(r.ExportPowerW)},
		{"import_off_peak_wh", fmt.Sprint(r.ImportOffPeakWh)},
		{"import_peak_wh", fmt.Sprint(r.ImportPeakWh)},
		{"export_off_peak_wh", fmt.Sprint(r.ExportOffPeakWh)},
		{"export_peak_wh", fmt.Sprint(r.ExportPeakWh)},
	}
	if r.Tariff != nil {
		rows = append(rows, []string{"tariff", fmt.Sprint(*r.Tariff)})
	}
	if r.GasDm3 != nil {
		rows = append(rows, []string{"gas_dm3", fmt.Sprint(*r.GasDm3)})
	}
	if r.MeterTime != nil {
		rows = append(rows, []string{"meter_time", r.MeterTime.Format("2006-01-02 15:04:05")})
	}
	return rows
}
