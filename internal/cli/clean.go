package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-extractor/internal/domain/extraction/source"
	"github.com/FACorreiaa/statement-extractor/internal/domain/transform"
)

func newCleanCommand() *cobra.Command {
	var (
		opsPath string
		outPath string
		sheet   string
		preview bool
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "clean <table>",
		Short: "Apply an operation list to one raw table",
		Long: `Read a raw table (csv, tsv, xlsx, html, json or layout json), apply the
operations in --ops and write the cleaned table as CSV to stdout or --out.`,
		Example: `  extractor clean page_3.csv --ops page_3.ops.json --out page_3.clean.csv
  extractor clean page_3.xlsx --ops page_3.ops.json --preview`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig(cmd.Context())
			log := getLogger(cmd.Context()).With(slog.String("table", args[0]))

			raw, err := source.Open(args[0], sourceOptions(cfg, sheet))
			if err != nil {
				return err
			}

			var ops []transform.Operation
			if opsPath != "" {
				data, err := os.ReadFile(opsPath)
				if err != nil {
					return fmt.Errorf("failed to read operations: %w", err)
				}
				if ops, err = transform.DecodeOperations(data); err != nil {
					return err
				}
			}

			d := transform.NewDispatcher(log, transform.WithMissingValues(missingValues(cfg)))
			res, err := d.Clean(raw.Header, raw.Rows, ops, log)
			if err != nil {
				return fmt.Errorf("failed to clean table: %w", err)
			}
			log.Info("table cleaned",
				slog.Int("operations", len(ops)),
				slog.Int("applied", res.Stats.Applied),
				slog.Int("skipped", res.Stats.Skipped),
				slog.Int("rows", len(res.Rows)))

			if preview {
				renderRecords(cmd.OutOrStdout(), res.Columns, res.Rows, limit)
				if outPath == "" {
					return nil
				}
			}
			return writeRecords(cmd.OutOrStdout(), outPath, res.Records())
		},
	}

	cmd.Flags().StringVarP(&opsPath, "ops", "p", "", "Operation list (JSON)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output CSV (default: stdout)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "Worksheet to read from an xlsx table")
	cmd.Flags().String("delimiter", "", "CSV delimiter (default: detected)")
	cmd.Flags().BoolVar(&preview, "preview", false, "Render the cleaned table instead of writing CSV to stdout")
	cmd.Flags().IntVar(&limit, "limit", 20, "Rows shown by --preview (0 for all)")

	return cmd
}

// writeRecords writes CSV to path, or to stdout when path is empty.
func writeRecords(stdout io.Writer, path string, records [][]string) error {
	if path == "" {
		return source.WriteCSV(stdout, records)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := source.WriteCSV(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
