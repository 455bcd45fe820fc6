package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	enumpersistence "github.com/fieldstream/fieldstream/modules/enumerators/infrastructure/persistence"
	enumservices "github.com/fieldstream/fieldstream/modules/enumerators/services"
	locdomain "github.com/fieldstream/fieldstream/modules/locations/domain"
	locpersistence "github.com/fieldstream/fieldstream/modules/locations/infrastructure/persistence"
	locservices "github.com/fieldstream/fieldstream/modules/locations/services"
	surveypersistence "github.com/fieldstream/fieldstream/modules/surveys/infrastructure/persistence"
	surveyservices "github.com/fieldstream/fieldstream/modules/surveys/services"
	targetpersistence "github.com/fieldstream/fieldstream/modules/targets/infrastructure/persistence"
	targetservices "github.com/fieldstream/fieldstream/modules/targets/services"
	"github.com/fieldstream/fieldstream/pkg/composables"
	"github.com/fieldstream/fieldstream/pkg/configuration"
	"github.com/fieldstream/fieldstream/pkg/eventbus"
	"github.com/fieldstream/fieldstream/pkg/tabular"
)

type importOptions struct {
	scopeUID      uuid.UUID
	input         string
	mode          string
	apply         bool
	acceptPartial bool
	reportPath    string
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import survey data from a CSV file (dry-run unless --apply)",
	}
	cmd.AddCommand(newImportLocationsCmd())
	cmd.AddCommand(newImportTargetsCmd())
	cmd.AddCommand(newImportEnumeratorsCmd())
	return cmd
}

func addImportFlags(cmd *cobra.Command, opts *importOptions, scopeFlag string) {
	cmd.Flags().StringVar(&opts.input, "input", "", "Input CSV file (required)")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Upload mode (default: overwrite)")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Apply changes to the DB (default is dry-run)")
	cmd.Flags().BoolVar(&opts.acceptPartial, "accept-partial", false, "Persist valid rows even when some rows fail validation")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "Write the invalid-records report to this path (.xlsx or .csv)")

	var scope string
	cmd.Flags().StringVar(&scope, scopeFlag, "", fmt.Sprintf("%s UUID (required)", scopeFlag))
	_ = cmd.MarkFlagRequired(scopeFlag)
	_ = cmd.MarkFlagRequired("input")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(strings.TrimSpace(scope))
		if err != nil {
			return withCode(exitUsage, fmt.Errorf("invalid --%s: %w", scopeFlag, err))
		}
		opts.scopeUID = id
		return nil
	}
}

func newImportLocationsCmd() *cobra.Command {
	var opts importOptions
	cmd := &cobra.Command{
		Use:   "locations",
		Short: "Import the location wide file for a survey",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := locservices.ParseUploadMode(opts.mode)
			if err != nil {
				return withCode(exitUsage, err)
			}
			return runImport(cmd.Context(), opts, func(ctx context.Context, pub eventbus.EventBus, raw string) (*uploadOutcome, error) {
				service := locservices.NewLocationService(locpersistence.NewLocationRepository(), pub)
				result, err := service.Upload(ctx, opts.scopeUID, raw, locservices.UploadParams{
					Mode:          mode,
					AcceptPartial: opts.acceptPartial,
				})
				if err != nil {
					return nil, err
				}
				return &uploadOutcome{Inserted: result.Inserted, Rejected: result.Rejected, Report: result.Report}, nil
			})
		},
	}
	addImportFlags(cmd, &opts, "survey")
	return cmd
}

func newImportTargetsCmd() *cobra.Command {
	var opts importOptions
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Import the target file for a form",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := targetservices.ParseUploadMode(opts.mode)
			if err != nil {
				return withCode(exitUsage, err)
			}
			return runImport(cmd.Context(), opts, func(ctx context.Context, pub eventbus.EventBus, raw string) (*uploadOutcome, error) {
				locations := locservices.NewLocationService(locpersistence.NewLocationRepository(), pub)
				service := targetservices.NewTargetService(targetpersistence.NewTargetRepository(), locations, pub)
				result, err := service.Upload(ctx, opts.scopeUID, raw, targetservices.UploadParams{
					Mode:          mode,
					AcceptPartial: opts.acceptPartial,
				})
				if err != nil {
					return nil, err
				}
				return &uploadOutcome{Inserted: result.Inserted, Rejected: result.Rejected, Report: result.Report}, nil
			})
		},
	}
	addImportFlags(cmd, &opts, "form")
	return cmd
}

func newImportEnumeratorsCmd() *cobra.Command {
	var opts importOptions
	cmd := &cobra.Command{
		Use:   "enumerators",
		Short: "Import the enumerator roster for a survey",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := enumservices.ParseUploadMode(opts.mode)
			if err != nil {
				return withCode(exitUsage, err)
			}
			return runImport(cmd.Context(), opts, func(ctx context.Context, pub eventbus.EventBus, raw string) (*uploadOutcome, error) {
				locations := locservices.NewLocationService(locpersistence.NewLocationRepository(), pub)
				surveys := surveyservices.NewSurveyService(surveypersistence.NewSurveyRepository(), locations, pub)
				service := enumservices.NewEnumeratorService(enumpersistence.NewEnumeratorRepository(), surveys, locations, pub)
				result, err := service.Upload(ctx, opts.scopeUID, raw, enumservices.UploadParams{
					Mode:          mode,
					AcceptPartial: opts.acceptPartial,
				})
				if err != nil {
					return nil, err
				}
				return &uploadOutcome{Inserted: result.Inserted, Rejected: result.Rejected, Report: result.Report}, nil
			})
		},
	}
	addImportFlags(cmd, &opts, "survey")
	return cmd
}

type uploadOutcome struct {
	Inserted int
	Rejected int
	Report   *tabular.RecordError
}

type uploadFunc func(ctx context.Context, pub eventbus.EventBus, raw string) (*uploadOutcome, error)

// runImport runs the upload inside a transaction that is committed only
// under --apply; a dry run exercises the full validation and persistence
// path and rolls it back.
func runImport(ctx context.Context, opts importOptions, upload uploadFunc) error {
	raw, err := os.ReadFile(opts.input)
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("read input: %w", err))
	}

	pool, err := connectDB(ctx)
	if err != nil {
		return withCode(exitDB, err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return withCode(exitDB, fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txCtx := composables.WithTx(ctx, tx)
	pub := eventbus.NewEventPublisher(configuration.Use().Logger())

	outcome, err := upload(txCtx, pub, string(raw))
	if err != nil {
		return reportUploadError(err, opts.reportPath)
	}

	if outcome.Report != nil {
		printReportSummary(outcome.Report)
		if err := writeReport(outcome.Report, opts.reportPath); err != nil {
			return err
		}
	}

	if !opts.apply {
		fmt.Printf("dry-run: %d row(s) would be inserted, %d rejected; re-run with --apply to persist\n",
			outcome.Inserted, outcome.Rejected)
		return nil
	}
	if err := tx.Commit(ctx); err != nil {
		return withCode(exitDB, fmt.Errorf("commit tx: %w", err))
	}
	fmt.Printf("inserted %d row(s), rejected %d\n", outcome.Inserted, outcome.Rejected)
	return nil
}

func reportUploadError(err error, reportPath string) error {
	var hErr *locdomain.HierarchyError
	var mErr *locdomain.MappingError
	var sErr *tabular.StructureError
	var rErr *tabular.RecordError
	switch {
	case errors.As(err, &hErr):
		printProblems("geo level hierarchy is invalid:", hErr.Problems)
		return withCode(exitValidation, err)
	case errors.As(err, &mErr):
		printProblems("column mapping is invalid:", mErr.Problems)
		return withCode(exitValidation, err)
	case errors.As(err, &sErr):
		printProblems("uploaded file structure is invalid:", sErr.Problems)
		return withCode(exitValidation, err)
	case errors.As(err, &rErr):
		printReportSummary(rErr)
		if werr := writeReport(rErr, reportPath); werr != nil {
			return werr
		}
		return withCode(exitValidation, err)
	}
	return err
}

func printProblems(heading string, problems []string) {
	fmt.Fprintln(os.Stderr, heading)
	for _, p := range problems {
		fmt.Fprintf(os.Stderr, "  - %s\n", p)
	}
}

func printReportSummary(report *tabular.RecordError) {
	fmt.Fprintf(os.Stderr, "%d of %d row(s) failed validation:\n",
		report.Summary.RecordsWithErrors, report.Summary.TotalRecords)
	for _, rule := range report.SummaryByErrorType {
		fmt.Fprintf(os.Stderr, "  - [%s] %s\n", rule.ErrorType, rule.Message)
	}
}
