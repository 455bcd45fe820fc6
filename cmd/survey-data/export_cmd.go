package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	locpersistence "github.com/fieldstream/fieldstream/modules/locations/infrastructure/persistence"
	locservices "github.com/fieldstream/fieldstream/modules/locations/services"
	"github.com/fieldstream/fieldstream/pkg/composables"
	"github.com/fieldstream/fieldstream/pkg/configuration"
	"github.com/fieldstream/fieldstream/pkg/eventbus"
)

type exportOptions struct {
	surveyUID uuid.UUID
	output    string
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export survey data from the DB into CSV files",
	}
	cmd.AddCommand(newExportLocationsCmd())
	return cmd
}

func newExportLocationsCmd() *cobra.Command {
	var opts exportOptions
	var survey string

	cmd := &cobra.Command{
		Use:   "locations",
		Short: "Export a survey's locations as the wide CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExportLocations(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&survey, "survey", "", "survey UUID (required)")
	cmd.Flags().StringVar(&opts.output, "output", "", "Output CSV file (required)")
	_ = cmd.MarkFlagRequired("survey")
	_ = cmd.MarkFlagRequired("output")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(strings.TrimSpace(survey))
		if err != nil {
			return withCode(exitUsage, fmt.Errorf("invalid --survey: %w", err))
		}
		opts.surveyUID = id
		return nil
	}

	return cmd
}

func runExportLocations(cmd *cobra.Command, opts exportOptions) error {
	ctx := cmd.Context()

	pool, err := connectDB(ctx)
	if err != nil {
		return withCode(exitDB, err)
	}
	defer pool.Close()

	ctx = composables.WithPool(ctx, pool)
	service := locservices.NewLocationService(
		locpersistence.NewLocationRepository(),
		eventbus.NewEventPublisher(configuration.Use().Logger()),
	)

	hierarchy, rows, err := service.WideTable(ctx, opts.surveyUID)
	if err != nil {
		return err
	}
	mapping, err := service.ColumnMapping(ctx, opts.surveyUID)
	if err != nil {
		return err
	}

	f, err := os.Create(opts.output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write(mapping.Columns()); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	for _, row := range rows {
		record := make([]string, 0, 2*len(hierarchy.Ordered))
		for _, level := range hierarchy.Ordered {
			cell := row[level.UID]
			record = append(record, cell.ID, cell.Name)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Printf("exported %d location row(s) to %s\n", len(rows), opts.output)
	return nil
}
