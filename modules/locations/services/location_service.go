package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fieldstream/fieldstream/modules/locations/domain"
	"github.com/fieldstream/fieldstream/pkg/composables"
	"github.com/fieldstream/fieldstream/pkg/eventbus"
	"github.com/fieldstream/fieldstream/pkg/metrics"
	"github.com/fieldstream/fieldstream/pkg/tabular"
)

// LocationRepository is the storage contract for geo levels, column mappings
// and locations of one survey. Implementations read the active transaction
// from the context, so multi-step operations compose under composables.InTx.
type LocationRepository interface {
	GeoLevels(ctx context.Context, surveyUID uuid.UUID) ([]domain.GeoLevel, error)
	ReplaceGeoLevels(ctx context.Context, surveyUID uuid.UUID, levels []domain.GeoLevel) error

	ColumnMapping(ctx context.Context, surveyUID uuid.UUID) ([]domain.GeoLevelMapping, error)
	SaveColumnMapping(ctx context.Context, surveyUID uuid.UUID, entries []domain.GeoLevelMapping) error

	Locations(ctx context.Context, surveyUID uuid.UUID) ([]domain.Location, error)
	LocationsAtLevel(ctx context.Context, surveyUID, geoLevelUID uuid.UUID) ([]domain.Location, error)
	InsertLocations(ctx context.Context, locations []domain.Location) error
	DeleteLocations(ctx context.Context, surveyUID uuid.UUID) error

	// Location links held by other record kinds, purged when the hierarchy
	// is restructured.
	DeleteTargetLocationLinks(ctx context.Context, surveyUID uuid.UUID) error
	DeleteEnumeratorLocationLinks(ctx context.Context, surveyUID uuid.UUID) error
}

// UploadMode selects what happens to previously persisted locations.
type UploadMode string

const (
	// ModeOverwrite replaces the survey's entire location set.
	ModeOverwrite UploadMode = "overwrite"
	// ModeAppend keeps existing locations and inserts new business keys,
	// validating uploaded rows against the persisted set.
	ModeAppend UploadMode = "append"
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

// UploadParams shape one locations upload pass.
type UploadParams struct {
	Mode UploadMode
	// AcceptPartial persists the rows that passed validation and still
	// returns the error report for the rest. Without it any record error
	// rejects the whole upload.
	AcceptPartial bool
	BatchSize     int
}

// UploadResult reports what one upload pass persisted. Report is non-nil
// only for partial loads, carrying the violations of the dropped rows.
type UploadResult struct {
	Inserted int                  `json:"inserted"`
	Rejected int                  `json:"rejected"`
	Report   *tabular.RecordError `json:"report,omitempty"`
}

// LocationsUploadedEvent is published after a successful (possibly partial)
// locations upload.
type LocationsUploadedEvent struct {
	SurveyUID uuid.UUID
	Mode      UploadMode
	Inserted  int
	Rejected  int
}

// HierarchyReplacedEvent is published after a survey's geo level chain is
// replaced and its dependents purged.
type HierarchyReplacedEvent struct {
	SurveyUID uuid.UUID
	Levels    int
}

type LocationService struct {
	repo      LocationRepository
	publisher eventbus.EventBus
}

func NewLocationService(repo LocationRepository, publisher eventbus.EventBus) *LocationService {
	return &LocationService{repo: repo, publisher: publisher}
}

// Hierarchy loads and validates the survey's geo level chain.
func (s *LocationService) Hierarchy(ctx context.Context, surveyUID uuid.UUID) (*domain.GeoLevelHierarchy, error) {
	levels, err := s.repo.GeoLevels(ctx, surveyUID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch geo levels")
	}
	return domain.NewGeoLevelHierarchy(levels)
}

// ReplaceHierarchy validates the new chain and, in one transaction, deletes
// every dependent location and location link for the survey before writing
// the new levels. Destructive on purpose; there is no partial variant.
func (s *LocationService) ReplaceHierarchy(ctx context.Context, surveyUID uuid.UUID, levels []domain.GeoLevel) (*domain.GeoLevelHierarchy, error) {
	for i := range levels {
		levels[i].SurveyUID = surveyUID
		if levels[i].UID == uuid.Nil {
			levels[i].UID = uuid.New()
		}
	}
	h, err := domain.NewGeoLevelHierarchy(levels)
	if err != nil {
		return nil, err
	}

	err = composables.InTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.DeleteTargetLocationLinks(txCtx, surveyUID); err != nil {
			return errors.Wrap(err, "purge target location links")
		}
		if err := s.repo.DeleteEnumeratorLocationLinks(txCtx, surveyUID); err != nil {
			return errors.Wrap(err, "purge enumerator location links")
		}
		if err := s.repo.DeleteLocations(txCtx, surveyUID); err != nil {
			return errors.Wrap(err, "purge locations")
		}
		return errors.Wrap(s.repo.ReplaceGeoLevels(txCtx, surveyUID, h.Ordered), "write geo levels")
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(HierarchyReplacedEvent{SurveyUID: surveyUID, Levels: len(h.Ordered)})
	return h, nil
}

// ColumnMapping loads the survey's persisted mapping, validated against the
// current hierarchy.
func (s *LocationService) ColumnMapping(ctx context.Context, surveyUID uuid.UUID) (*domain.LocationColumnMapping, error) {
	h, err := s.Hierarchy(ctx, surveyUID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ColumnMapping(ctx, surveyUID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch column mapping")
	}
	return domain.NewLocationColumnMapping(h, entries)
}

// SetColumnMapping validates and persists a caller-supplied mapping.
func (s *LocationService) SetColumnMapping(ctx context.Context, surveyUID uuid.UUID, entries []domain.GeoLevelMapping) (*domain.LocationColumnMapping, error) {
	h, err := s.Hierarchy(ctx, surveyUID)
	if err != nil {
		return nil, err
	}
	m, err := domain.NewLocationColumnMapping(h, entries)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveColumnMapping(ctx, surveyUID, m.Entries()); err != nil {
		return nil, errors.Wrap(err, "save column mapping")
	}
	return m, nil
}

// WideTable returns the survey's persisted locations re-joined into one row
// per bottom-level location.
func (s *LocationService) WideTable(ctx context.Context, surveyUID uuid.UUID) (*domain.GeoLevelHierarchy, []domain.WideRow, error) {
	h, err := s.Hierarchy(ctx, surveyUID)
	if err != nil {
		return nil, nil, err
	}
	locations, err := s.repo.Locations(ctx, surveyUID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "fetch locations")
	}
	return h, domain.BuildWideRows(h, locations), nil
}

// LocationsAt lists the survey's persisted locations at one geo level. Other
// record kinds resolve their location references through it.
func (s *LocationService) LocationsAt(ctx context.Context, surveyUID, geoLevelUID uuid.UUID) ([]domain.Location, error) {
	locations, err := s.repo.LocationsAtLevel(ctx, surveyUID, geoLevelUID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch locations")
	}
	return locations, nil
}

// Upload parses raw delimited text, validates it against the hierarchy, the
// column mapping and (in append mode) the persisted locations, and persists
// the surviving rows level by level inside one transaction.
//
// Failures come in three families: *domain.HierarchyError and
// *domain.MappingError for misconfigured surveys, *tabular.StructureError
// for malformed files, and *tabular.RecordError for row-level violations.
func (s *LocationService) Upload(ctx context.Context, surveyUID uuid.UUID, raw string, params UploadParams) (*UploadResult, error) {
	mapping, err := s.ColumnMapping(ctx, surveyUID)
	if err != nil {
		return nil, err
	}
	h, err := s.Hierarchy(ctx, surveyUID)
	if err != nil {
		return nil, err
	}

	table, err := tabular.Parse(raw)
	if err != nil {
		return nil, err
	}

	var persisted []domain.WideRow
	if params.Mode == ModeAppend {
		locations, err := s.repo.Locations(ctx, surveyUID)
		if err != nil {
			return nil, errors.Wrap(err, "fetch locations")
		}
		persisted = domain.BuildWideRows(h, locations)
	}

	report, err := validateLocationRecords(table, h, mapping, persisted)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("locations", "malformed").Inc()
		return nil, err
	}

	rows := table.Rows
	result := &UploadResult{}
	if report != nil {
		observeRecordError("locations", report)
		if !params.AcceptPartial {
			metrics.UploadsTotal.WithLabelValues("locations", "rejected").Inc()
			return nil, report
		}
		rows = dropRows(table.Rows, report.RowNumbersWithErrors())
		result.Rejected = len(table.Rows) - len(rows)
		result.Report = report
	}

	reconciler := newLocationReconciler(s.repo, h, mapping, params.BatchSize)
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		if params.Mode == ModeOverwrite {
			if err := s.repo.DeleteLocations(txCtx, surveyUID); err != nil {
				return errors.Wrap(err, "purge locations")
			}
		}
		inserted, err := reconciler.Persist(txCtx, surveyUID, table, rows)
		if err != nil {
			return err
		}
		result.Inserted = inserted
		return nil
	})
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("locations", "failed").Inc()
		return nil, err
	}

	metrics.UploadsTotal.WithLabelValues("locations", "accepted").Inc()
	metrics.UploadRowsTotal.WithLabelValues("locations", "accepted").Add(float64(len(rows)))
	metrics.UploadRowsTotal.WithLabelValues("locations", "rejected").Add(float64(result.Rejected))

	s.publisher.Publish(LocationsUploadedEvent{
		SurveyUID: surveyUID,
		Mode:      params.Mode,
		Inserted:  result.Inserted,
		Rejected:  result.Rejected,
	})
	return result, nil
}

func observeRecordError(kind string, report *tabular.RecordError) {
	for _, rule := range report.SummaryByErrorType {
		metrics.UploadErrorsTotal.WithLabelValues(kind, rule.ErrorType).Add(float64(rule.Count))
	}
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
