package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fieldstream/fieldstream/modules/enumerators/domain"
	locservices "github.com/fieldstream/fieldstream/modules/locations/services"
	surveyservices "github.com/fieldstream/fieldstream/modules/surveys/services"
	"github.com/fieldstream/fieldstream/pkg/composables"
	"github.com/fieldstream/fieldstream/pkg/eventbus"
	"github.com/fieldstream/fieldstream/pkg/metrics"
	"github.com/fieldstream/fieldstream/pkg/tabular"
)

type EnumeratorRepository interface {
	Enumerators(ctx context.Context, surveyUID uuid.UUID) ([]domain.Enumerator, error)
	InsertEnumerators(ctx context.Context, enumerators []domain.Enumerator) error
	DeleteEnumerators(ctx context.Context, surveyUID uuid.UUID) error
}

type UploadMode string

const (
	ModeOverwrite UploadMode = "overwrite"
	ModeAppend    UploadMode = "append"
)

func ParseUploadMode(s string) (UploadMode, error) {
	switch UploadMode(s) {
	case ModeOverwrite, ModeAppend:
		return UploadMode(s), nil
	case "":
		return ModeOverwrite, nil
	}
	return "", fmt.Errorf("unknown upload mode %q", s)
}

type UploadParams struct {
	Mode          UploadMode
	AcceptPartial bool
	BatchSize     int
}

type UploadResult struct {
	Inserted int                  `json:"inserted"`
	Rejected int                  `json:"rejected"`
	Report   *tabular.RecordError `json:"report,omitempty"`
}

type EnumeratorsUploadedEvent struct {
	SurveyUID uuid.UUID
	Mode      UploadMode
	Inserted  int
	Rejected  int
}

type EnumeratorService struct {
	repo      EnumeratorRepository
	surveys   *surveyservices.SurveyService
	locations *locservices.LocationService
	publisher eventbus.EventBus
}

func NewEnumeratorService(
	repo EnumeratorRepository,
	surveys *surveyservices.SurveyService,
	locations *locservices.LocationService,
	publisher eventbus.EventBus,
) *EnumeratorService {
	return &EnumeratorService{repo: repo, surveys: surveys, locations: locations, publisher: publisher}
}

func (s *EnumeratorService) Roster(ctx context.Context, surveyUID uuid.UUID) ([]domain.Enumerator, error) {
	enumerators, err := s.repo.Enumerators(ctx, surveyUID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch enumerators")
	}
	sort.Slice(enumerators, func(i, j int) bool {
		return enumerators[i].EnumeratorID < enumerators[j].EnumeratorID
	})
	return enumerators, nil
}

// Upload parses and validates a roster file, resolving location references
// at the survey's configured prime geo level, then persists the surviving
// rows.
func (s *EnumeratorService) Upload(ctx context.Context, surveyUID uuid.UUID, raw string, params UploadParams) (*UploadResult, error) {
	primeUID, err := s.surveys.PrimeGeoLevel(ctx, surveyUID)
	if err != nil {
		return nil, err
	}
	primeLocations, err := s.locations.LocationsAt(ctx, surveyUID, primeUID)
	if err != nil {
		return nil, err
	}
	locationUIDs := make(map[string]uuid.UUID, len(primeLocations))
	for _, l := range primeLocations {
		locationUIDs[l.LocationID] = l.UID
	}

	table, err := tabular.Parse(raw)
	if err != nil {
		return nil, err
	}

	var existingKeys map[string]struct{}
	if params.Mode == ModeAppend {
		persisted, err := s.repo.Enumerators(ctx, surveyUID)
		if err != nil {
			return nil, errors.Wrap(err, "fetch enumerators")
		}
		existingKeys = make(map[string]struct{}, len(persisted))
		for _, e := range persisted {
			existingKeys[e.EnumeratorID] = struct{}{}
		}
	}

	report, err := validateEnumeratorRecords(table, locationUIDs, existingKeys)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("enumerators", "malformed").Inc()
		return nil, err
	}

	rows := table.Rows
	result := &UploadResult{}
	if report != nil {
		for _, rule := range report.SummaryByErrorType {
			metrics.UploadErrorsTotal.WithLabelValues("enumerators", rule.ErrorType).Add(float64(rule.Count))
		}
		if !params.AcceptPartial {
			metrics.UploadsTotal.WithLabelValues("enumerators", "rejected").Inc()
			return nil, report
		}
		rows = dropRows(table.Rows, report.RowNumbersWithErrors())
		result.Rejected = len(table.Rows) - len(rows)
		result.Report = report
	}

	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}

	err = composables.InTx(ctx, func(txCtx context.Context) error {
		if params.Mode == ModeOverwrite {
			if err := s.repo.DeleteEnumerators(txCtx, surveyUID); err != nil {
				return errors.Wrap(err, "purge enumerators")
			}
		}

		batch := make([]domain.Enumerator, 0, batchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := s.repo.InsertEnumerators(txCtx, batch); err != nil {
				return errors.Wrap(err, "insert enumerators")
			}
			result.Inserted += len(batch)
			batch = batch[:0]
			return nil
		}

		for _, row := range rows {
			e := domain.Enumerator{
				UID:          uuid.New(),
				SurveyUID:    surveyUID,
				EnumeratorID: table.Get(row, domain.ColumnEnumeratorID),
				Name:         table.Get(row, domain.ColumnName),
				Email:        table.Get(row, domain.ColumnEmail),
				Phone:        table.Get(row, domain.ColumnPhone),
			}
			if uid, ok := locationUIDs[table.Get(row, domain.ColumnLocationID)]; ok {
				e.LocationUID = &uid
			}
			batch = append(batch, e)
			if len(batch) == batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("enumerators", "failed").Inc()
		return nil, err
	}

	metrics.UploadsTotal.WithLabelValues("enumerators", "accepted").Inc()
	metrics.UploadRowsTotal.WithLabelValues("enumerators", "accepted").Add(float64(len(rows)))
	metrics.UploadRowsTotal.WithLabelValues("enumerators", "rejected").Add(float64(result.Rejected))

	s.publisher.Publish(EnumeratorsUploadedEvent{
		SurveyUID: surveyUID,
		Mode:      params.Mode,
		Inserted:  result.Inserted,
		Rejected:  result.Rejected,
	})
	return result, nil
}

// validateEnumeratorRecords applies the roster rule battery over the fixed
// column set: structure (fatal alone), blank mandatory columns, exact
// duplicate rows, duplicate enumerator ids, re-uploaded keys in append mode,
// and prime-level location resolution.
func validateEnumeratorRecords(
	table *tabular.Table,
	locationUIDs map[string]uuid.UUID,
	existingKeys map[string]struct{},
) (*tabular.RecordError, error) {
	if problems := tabular.CheckStructure(table, domain.UploadColumns()); len(problems) > 0 {
		return nil, &tabular.StructureError{Problems: problems}
	}

	report := tabular.NewReport(table)

	if issues := tabular.BlankCells(table, domain.RequiredColumns()); len(issues) > 0 {
		report.Add("blank_values",
			fmt.Sprintf("Blank values in mandatory columns on row(s): %s", issueNumbers(issues)),
			issues)
	}

	if rows := tabular.ExactDuplicateRows(table); len(rows) > 0 {
		report.Add("duplicate_rows",
			fmt.Sprintf("Duplicate rows on row(s): %s", tabular.FormatRowNumbers(rows)),
			tabular.Issues(rows, "row is an exact duplicate of another row in the file"))
	}

	if rows := tabular.DuplicateKeyRows(table, domain.ColumnEnumeratorID); len(rows) > 0 {
		report.Add("duplicate_enumerator_ids",
			fmt.Sprintf("Duplicate values in column %q on row(s): %s",
				domain.ColumnEnumeratorID, tabular.FormatRowNumbers(rows)),
			tabular.Issues(rows, fmt.Sprintf("value in column %q is duplicated in the file", domain.ColumnEnumeratorID)))
	}

	if existingKeys != nil {
		var issues []tabular.RowIssue
		for _, row := range table.Rows {
			key := table.Get(row, domain.ColumnEnumeratorID)
			if key == "" {
				continue
			}
			if _, taken := existingKeys[key]; taken {
				issues = append(issues, tabular.RowIssue{
					Number:  row.Number,
					Message: fmt.Sprintf("enumerator id %q already exists for this survey", key),
				})
			}
		}
		if len(issues) > 0 {
			report.Add("duplicate_with_existing_data",
				fmt.Sprintf("Enumerator ids already uploaded on row(s): %s", issueNumbers(issues)),
				issues)
		}
	}

	var issues []tabular.RowIssue
	for _, row := range table.Rows {
		value := table.Get(row, domain.ColumnLocationID)
		if value == "" {
			continue
		}
		if _, known := locationUIDs[value]; !known {
			issues = append(issues, tabular.RowIssue{
				Number:  row.Number,
				Message: fmt.Sprintf("location id %q does not match any location at the prime geo level", value),
			})
		}
	}
	if len(issues) > 0 {
		report.Add("unresolved_location_ids",
			fmt.Sprintf("Location ids not found at the prime geo level on row(s): %s", issueNumbers(issues)),
			issues)
	}

	return report.Finalize(), nil
}

func issueNumbers(issues []tabular.RowIssue) string {
	seen := make(map[int]struct{}, len(issues))
	var rows []int
	for _, issue := range issues {
		if _, ok := seen[issue.Number]; !ok {
			seen[issue.Number] = struct{}{}
			rows = append(rows, issue.Number)
		}
	}
	sort.Ints(rows)
	return tabular.FormatRowNumbers(rows)
}

func dropRows(rows []tabular.Row, flagged []int) []tabular.Row {
	bad := make(map[int]struct{}, len(flagged))
	for _, n := range flagged {
		bad[n] = struct{}{}
	}
	kept := make([]tabular.Row, 0, len(rows))
	for _, row := range rows {
		if _, ok := bad[row.Number]; !ok {
			kept = append(kept, row)
		}
	}
	return kept
}
