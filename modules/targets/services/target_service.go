package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	locservices "github.com/fieldstream/fieldstream/modules/locations/services"
	"github.com/fieldstream/fieldstream/modules/targets/domain"
	"github.com/fieldstream/fieldstream/pkg/composables"
	"github.com/fieldstream/fieldstream/pkg/eventbus"
	"github.com/fieldstream/fieldstream/pkg/metrics"
	"github.com/fieldstream/fieldstream/pkg/tabular"
)

// ErrFormNotFound is returned for unknown form uids.
var ErrFormNotFound = errors.New("form not found")

// ErrNoColumnMapping is returned when an upload arrives before a target
// column mapping was configured for the form.
var ErrNoColumnMapping = errors.New("no target column mapping configured for this form")

type TargetRepository interface {
	// SurveyForForm resolves the survey a form belongs to, needed for
	// hierarchy and location lookups.
	SurveyForForm(ctx context.Context, formUID uuid.UUID) (uuid.UUID, error)

	ColumnMapping(ctx context.Context, formUID uuid.UUID) (domain.MappingInput, bool, error)
	SaveColumnMapping(ctx context.Context, formUID uuid.UUID, mapping domain.MappingInput) error

	Targets(ctx context.Context, formUID uuid.UUID) ([]domain.Target, error)
	InsertTargets(ctx context.Context, targets []domain.Target) error
	DeleteTargets(ctx context.Context, formUID uuid.UUID) error
}

// UploadMode mirrors the locations upload modes; merge is the target-side
// name for append.
type UploadMode string

const (
	ModeOverwrite UploadMode = "overwrite"
	ModeMerge     UploadMode = "merge"
)

func ParseUploadMode(s string) (UploadMode, error) {
	switch UploadMode(s) {
	case ModeOverwrite, ModeMerge:
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

type TargetsUploadedEvent struct {
	FormUID  uuid.UUID
	Mode     UploadMode
	Inserted int
	Rejected int
}

type TargetService struct {
	repo      TargetRepository
	locations *locservices.LocationService
	publisher eventbus.EventBus
}

func NewTargetService(repo TargetRepository, locations *locservices.LocationService, publisher eventbus.EventBus) *TargetService {
	return &TargetService{repo: repo, locations: locations, publisher: publisher}
}

func (s *TargetService) Targets(ctx context.Context, formUID uuid.UUID) ([]domain.Target, error) {
	return s.repo.Targets(ctx, formUID)
}

func (s *TargetService) ColumnMapping(ctx context.Context, formUID uuid.UUID) (*domain.TargetColumnMapping, error) {
	input, found, err := s.repo.ColumnMapping(ctx, formUID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch target column mapping")
	}
	if !found {
		return nil, ErrNoColumnMapping
	}
	return domain.NewTargetColumnMapping(input)
}

func (s *TargetService) SetColumnMapping(ctx context.Context, formUID uuid.UUID, input domain.MappingInput) (*domain.TargetColumnMapping, error) {
	m, err := domain.NewTargetColumnMapping(input)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveColumnMapping(ctx, formUID, m.Input()); err != nil {
		return nil, errors.Wrap(err, "save target column mapping")
	}
	return m, nil
}

// Upload parses raw delimited text, validates it against the form's column
// mapping and the survey's persisted bottom-level locations, and persists
// the surviving rows. Location references always resolve at the hierarchy's
// absolute bottom level.
func (s *TargetService) Upload(ctx context.Context, formUID uuid.UUID, raw string, params UploadParams) (*UploadResult, error) {
	mapping, err := s.ColumnMapping(ctx, formUID)
	if err != nil {
		return nil, err
	}

	surveyUID, err := s.repo.SurveyForForm(ctx, formUID)
	if err != nil {
		return nil, err
	}

	table, err := tabular.Parse(raw)
	if err != nil {
		return nil, err
	}

	// known bottom-level locations, keyed by business key
	locationUIDs := make(map[string]uuid.UUID)
	if mapping.LocationIDColumn() != "" {
		h, err := s.locations.Hierarchy(ctx, surveyUID)
		if err != nil {
			return nil, err
		}
		bottom, err := s.locations.LocationsAt(ctx, surveyUID, h.Bottom().UID)
		if err != nil {
			return nil, err
		}
		for _, l := range bottom {
			locationUIDs[l.LocationID] = l.UID
		}
	}

	var existingKeys map[string]struct{}
	if params.Mode == ModeMerge {
		persisted, err := s.repo.Targets(ctx, formUID)
		if err != nil {
			return nil, errors.Wrap(err, "fetch targets")
		}
		existingKeys = make(map[string]struct{}, len(persisted))
		for _, t := range persisted {
			existingKeys[t.TargetID] = struct{}{}
		}
	}

	report, err := validateTargetRecords(table, mapping, locationUIDs, existingKeys)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("targets", "malformed").Inc()
		return nil, err
	}

	rows := table.Rows
	result := &UploadResult{}
	if report != nil {
		for _, rule := range report.SummaryByErrorType {
			metrics.UploadErrorsTotal.WithLabelValues("targets", rule.ErrorType).Add(float64(rule.Count))
		}
		if !params.AcceptPartial {
			metrics.UploadsTotal.WithLabelValues("targets", "rejected").Inc()
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

	result.Inserted, err = composables.InTxResult(ctx, func(txCtx context.Context) (int, error) {
		if params.Mode == ModeOverwrite {
			if err := s.repo.DeleteTargets(txCtx, formUID); err != nil {
				return 0, errors.Wrap(err, "purge targets")
			}
		}
		return s.persist(txCtx, formUID, mapping, table, rows, locationUIDs, batchSize)
	})
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("targets", "failed").Inc()
		return nil, err
	}

	metrics.UploadsTotal.WithLabelValues("targets", "accepted").Inc()
	metrics.UploadRowsTotal.WithLabelValues("targets", "accepted").Add(float64(len(rows)))
	metrics.UploadRowsTotal.WithLabelValues("targets", "rejected").Add(float64(result.Rejected))

	s.publisher.Publish(TargetsUploadedEvent{
		FormUID:  formUID,
		Mode:     params.Mode,
		Inserted: result.Inserted,
		Rejected: result.Rejected,
	})
	return result, nil
}

func (s *TargetService) persist(
	ctx context.Context,
	formUID uuid.UUID,
	mapping *domain.TargetColumnMapping,
	table *tabular.Table,
	rows []tabular.Row,
	locationUIDs map[string]uuid.UUID,
	batchSize int,
) (int, error) {
	batch := make([]domain.Target, 0, batchSize)
	inserted := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.repo.InsertTargets(ctx, batch); err != nil {
			return errors.Wrap(err, "insert targets")
		}
		inserted += len(batch)
		batch = batch[:0]
		return nil
	}

	for _, row := range rows {
		t := domain.Target{
			UID:      uuid.New(),
			FormUID:  formUID,
			TargetID: table.Get(row, mapping.TargetIDColumn()),
			Language: table.Get(row, mapping.LanguageColumn()),
			Gender:   table.Get(row, mapping.GenderColumn()),
		}
		if col := mapping.LocationIDColumn(); col != "" {
			if uid, ok := locationUIDs[table.Get(row, col)]; ok {
				t.LocationUID = &uid
			}
		}
		if customs := mapping.CustomFields(); len(customs) > 0 {
			t.CustomFields = make(map[string]string, len(customs))
			for _, cf := range customs {
				t.CustomFields[cf.FieldLabel] = table.Get(row, cf.ColumnName)
			}
		}
		batch = append(batch, t)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return inserted, err
			}
		}
	}
	if err := flush(); err != nil {
		return inserted, err
	}
	return inserted, nil
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
