package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/fieldstream/fieldstream/modules/locations/domain"
	"github.com/fieldstream/fieldstream/modules/locations/services"
	"github.com/fieldstream/fieldstream/pkg/composables"
	"github.com/fieldstream/fieldstream/pkg/eventbus"
)

// memoryLocationRepository keeps everything in slices so the validation and
// reconciliation paths run without a database. It ignores the context
// transaction on purpose; transactional behavior is the pgx repository's
// concern.
type memoryLocationRepository struct {
	levels    []domain.GeoLevel
	mapping   []domain.GeoLevelMapping
	locations []domain.Location

	locationPurges   int
	targetLinkPurges int
	enumLinkPurges   int
}

func (m *memoryLocationRepository) GeoLevels(_ context.Context, surveyUID uuid.UUID) ([]domain.GeoLevel, error) {
	var out []domain.GeoLevel
	for _, l := range m.levels {
		if l.SurveyUID == surveyUID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memoryLocationRepository) ReplaceGeoLevels(_ context.Context, surveyUID uuid.UUID, levels []domain.GeoLevel) error {
	kept := m.levels[:0]
	for _, l := range m.levels {
		if l.SurveyUID != surveyUID {
			kept = append(kept, l)
		}
	}
	m.levels = append(kept, levels...)
	return nil
}

func (m *memoryLocationRepository) ColumnMapping(_ context.Context, _ uuid.UUID) ([]domain.GeoLevelMapping, error) {
	return m.mapping, nil
}

func (m *memoryLocationRepository) SaveColumnMapping(_ context.Context, _ uuid.UUID, entries []domain.GeoLevelMapping) error {
	m.mapping = entries
	return nil
}

func (m *memoryLocationRepository) Locations(_ context.Context, surveyUID uuid.UUID) ([]domain.Location, error) {
	var out []domain.Location
	for _, l := range m.locations {
		if l.SurveyUID == surveyUID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memoryLocationRepository) LocationsAtLevel(_ context.Context, surveyUID, geoLevelUID uuid.UUID) ([]domain.Location, error) {
	var out []domain.Location
	for _, l := range m.locations {
		if l.SurveyUID == surveyUID && l.GeoLevelUID == geoLevelUID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memoryLocationRepository) InsertLocations(_ context.Context, locations []domain.Location) error {
	m.locations = append(m.locations, locations...)
	return nil
}

func (m *memoryLocationRepository) DeleteLocations(_ context.Context, surveyUID uuid.UUID) error {
	m.locationPurges++
	kept := m.locations[:0]
	for _, l := range m.locations {
		if l.SurveyUID != surveyUID {
			kept = append(kept, l)
		}
	}
	m.locations = kept
	return nil
}

func (m *memoryLocationRepository) DeleteTargetLocationLinks(_ context.Context, _ uuid.UUID) error {
	m.targetLinkPurges++
	return nil
}

func (m *memoryLocationRepository) DeleteEnumeratorLocationLinks(_ context.Context, _ uuid.UUID) error {
	m.enumLinkPurges++
	return nil
}

// nopTx satisfies pgx.Tx so composables.InTx joins it instead of demanding a
// real pool. The memory repository never touches it.
type nopTx struct{}

func (nopTx) Begin(context.Context) (pgx.Tx, error) { return nopTx{}, nil }
func (nopTx) Commit(context.Context) error          { return nil }
func (nopTx) Rollback(context.Context) error        { return nil }
func (nopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (nopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (nopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (nopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (nopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (nopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (nopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (nopTx) Conn() *pgx.Conn                                         { return nil }

type fixture struct {
	ctx       context.Context
	repo      *memoryLocationRepository
	service   *services.LocationService
	surveyUID uuid.UUID
	hierarchy *domain.GeoLevelHierarchy
}

// newFixture builds a District → Mandal → PSU survey with its six-column
// mapping already configured.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	surveyUID := uuid.New()
	district := domain.GeoLevel{UID: uuid.New(), SurveyUID: surveyUID, Name: "District"}
	mandal := domain.GeoLevel{UID: uuid.New(), SurveyUID: surveyUID, Name: "Mandal", ParentUID: &district.UID}
	psu := domain.GeoLevel{UID: uuid.New(), SurveyUID: surveyUID, Name: "PSU", ParentUID: &mandal.UID}

	repo := &memoryLocationRepository{
		levels: []domain.GeoLevel{district, mandal, psu},
		mapping: []domain.GeoLevelMapping{
			{GeoLevelUID: district.UID, IDColumn: "district_id", NameColumn: "district_name"},
			{GeoLevelUID: mandal.UID, IDColumn: "mandal_id", NameColumn: "mandal_name"},
			{GeoLevelUID: psu.UID, IDColumn: "psu_id", NameColumn: "psu_name"},
		},
	}

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	service := services.NewLocationService(repo, eventbus.NewEventPublisher(log))

	h, err := domain.NewGeoLevelHierarchy(repo.levels)
	require.NoError(t, err)

	return &fixture{
		ctx:       composables.WithTx(context.Background(), nopTx{}),
		repo:      repo,
		service:   service,
		surveyUID: surveyUID,
		hierarchy: h,
	}
}
