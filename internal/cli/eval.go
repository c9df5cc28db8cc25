package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-extractor/internal/domain/eval"
	evalrepo "github.com/FACorreiaa/statement-extractor/internal/domain/eval/repository"
	"github.com/FACorreiaa/statement-extractor/internal/domain/extraction/repository"
)

func newEvalCommand() *cobra.Command {
	var (
		save       bool
		documentID string
		maxDiffs   int
	)

	cmd := &cobra.Command{
		Use:   "eval <expected.csv> <actual.csv>",
		Short: "Score an extracted statement against a reference CSV",
		Long: `Compare two CSV tables cell by cell. Numeric cells match within --tolerance,
empty and NA cells match each other, headers are compared by set, position and
similarity, and the date, credit, debit, description and balance columns get
their own scores.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := getConfig(ctx)
			log := getLogger(ctx)

			expected, err := eval.LoadTable(args[0])
			if err != nil {
				return err
			}
			actual, err := eval.LoadTable(args[1])
			if err != nil {
				return err
			}

			opts := eval.DefaultOptions()
			opts.Tolerance = decimal.NewFromFloat(cfg.Eval.Tolerance)
			opts.HeaderThreshold = cfg.Eval.HeaderThreshold
			opts.MissingValues = missingValues(cfg)

			rep := eval.Compare(expected, actual, opts)
			renderReport(cmd.OutOrStdout(), rep, maxDiffs)

			log.Info("tables compared",
				slog.Float64("match_percentage", rep.MatchPercentage),
				slog.Float64("header_match", rep.Headers.MatchPercentage),
				slog.Int("differences", rep.Differences))

			if !save {
				return nil
			}
			if !cfg.Database.Enabled {
				return errDatabaseDisabled
			}

			deps, err := InitDependencies(cfg, log)
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			var extractionID *uuid.UUID
			if documentID != "" {
				e, err := deps.ExtractionRepo.GetByDocumentID(ctx, documentID)
				if err != nil {
					if errors.Is(err, repository.ErrNotFound) {
						return fmt.Errorf("no extraction for document %q", documentID)
					}
					return err
				}
				extractionID = &e.ID
			}

			ev := evalrepo.NewEvaluation(rep, expected.Name, actual.Name, extractionID)
			if err := deps.EvaluationRepo.Save(ctx, ev); err != nil {
				return err
			}
			log.Info("evaluation saved", slog.String("evaluation_id", ev.ID.String()))
			return nil
		},
	}

	cmd.Flags().Float64("tolerance", 0, "Numeric tolerance (default 0.0001)")
	cmd.Flags().Float64("threshold", 0, "Header similarity threshold (default 0.8)")
	cmd.Flags().IntVar(&maxDiffs, "diffs", 20, "Differences listed (0 for none)")
	cmd.Flags().BoolVar(&save, "save", false, "Store the evaluation (requires the database)")
	cmd.Flags().StringVar(&documentID, "document-id", "", "Link the evaluation to this document's extraction")
	cmd.Flags().Bool("db", false, "Enable the database")

	return cmd
}
