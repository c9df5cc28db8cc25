package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-extractor/internal/domain/extraction/pipeline"
)

func newProcessCommand() *cobra.Command {
	var (
		outPath    string
		documentID string
		userEmail  string
		pdfPath    string
	)

	cmd := &cobra.Command{
		Use:   "process <page-dir>",
		Short: "Clean and aggregate every page of a statement",
		Long: `Process a directory of extracted pages:

  page_<n>.<csv|tsv|xlsx|html|json|layout.json>  raw table of page n
  page_<n>.ops.json                               operation list of page n
  header.json                                     {"headers": [{"index", "headers"}], "invalid_pages": [...]}

Pages are cleaned concurrently, aggregated in page order and stored with a
page manifest under the storage path. With the database enabled an extraction
record is saved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := getConfig(ctx)
			log := getLogger(ctx)

			doc, err := pipeline.ScanDirectory(args[0])
			if err != nil {
				return err
			}
			doc.ID = documentID
			doc.UserEmail = userEmail
			doc.PDFPath = pdfPath

			deps, err := InitDependencies(cfg, log)
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			src := pipeline.NewDirectorySource(args[0], sourceOptions(cfg, ""))
			res, err := deps.NewProcessor(src).ProcessDocument(ctx, doc)
			if err != nil {
				return fmt.Errorf("failed to process %s: %w", args[0], err)
			}

			renderDocument(cmd.OutOrStdout(), res)

			if outPath != "" {
				if err := writeRecords(cmd.OutOrStdout(), outPath, res.Table.Records()); err != nil {
					return err
				}
				log.Info("statement written", slog.String("path", outPath), slog.Int("rows", res.RowCount))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Also write the final CSV here")
	cmd.Flags().StringVar(&documentID, "document-id", "", "Document id (default: random)")
	cmd.Flags().StringVar(&userEmail, "user-email", "", "Owner recorded with the extraction")
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "Source PDF recorded with the extraction")
	cmd.Flags().String("storage", "", "Artifact storage directory")
	cmd.Flags().String("page-logs", "", "Directory for per-page log files")
	cmd.Flags().Int("workers", 0, "Pages processed at once")
	cmd.Flags().Float64("rate-limit", 0, "Collaborator calls per second (0 for unlimited)")
	cmd.Flags().String("delimiter", "", "CSV delimiter (default: detected)")
	cmd.Flags().Bool("db", false, "Persist an extraction record")

	return cmd
}
