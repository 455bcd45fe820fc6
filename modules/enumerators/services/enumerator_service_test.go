package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldstream/fieldstream/modules/enumerators/domain"
	"github.com/fieldstream/fieldstream/modules/enumerators/services"
	locdomain "github.com/fieldstream/fieldstream/modules/locations/domain"
	locservices "github.com/fieldstream/fieldstream/modules/locations/services"
	surveydomain "github.com/fieldstream/fieldstream/modules/surveys/domain"
	surveyservices "github.com/fieldstream/fieldstream/modules/surveys/services"
	"github.com/fieldstream/fieldstream/pkg/composables"
	"github.com/fieldstream/fieldstream/pkg/eventbus"
	"github.com/fieldstream/fieldstream/pkg/tabular"
)

type memoryEnumeratorRepository struct {
	enumerators []domain.Enumerator
}

func (m *memoryEnumeratorRepository) Enumerators(_ context.Context, surveyUID uuid.UUID) ([]domain.Enumerator, error) {
	var out []domain.Enumerator
	for _, e := range m.enumerators {
		if e.SurveyUID == surveyUID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryEnumeratorRepository) InsertEnumerators(_ context.Context, enumerators []domain.Enumerator) error {
	m.enumerators = append(m.enumerators, enumerators...)
	return nil
}

func (m *memoryEnumeratorRepository) DeleteEnumerators(_ context.Context, surveyUID uuid.UUID) error {
	kept := m.enumerators[:0]
	for _, e := range m.enumerators {
		if e.SurveyUID != surveyUID {
			kept = append(kept, e)
		}
	}
	m.enumerators = kept
	return nil
}

type memorySurveyRepository struct {
	surveys map[uuid.UUID]surveydomain.Survey
}

func (m *memorySurveyRepository) Get(_ context.Context, uid uuid.UUID) (surveydomain.Survey, error) {
	s, ok := m.surveys[uid]
	if !ok {
		return surveydomain.Survey{}, surveyservices.ErrSurveyNotFound
	}
	return s, nil
}

func (m *memorySurveyRepository) GetByKey(_ context.Context, key string) (surveydomain.Survey, error) {
	for _, s := range m.surveys {
		if s.Key == key {
			return s, nil
		}
	}
	return surveydomain.Survey{}, surveyservices.ErrSurveyNotFound
}

func (m *memorySurveyRepository) List(_ context.Context) ([]surveydomain.Survey, error) {
	return nil, nil
}

func (m *memorySurveyRepository) Insert(_ context.Context, s surveydomain.Survey) error {
	m.surveys[s.UID] = s
	return nil
}

func (m *memorySurveyRepository) Update(_ context.Context, s surveydomain.Survey) error {
	m.surveys[s.UID] = s
	return nil
}

func (m *memorySurveyRepository) Delete(_ context.Context, uid uuid.UUID) error {
	delete(m.surveys, uid)
	return nil
}

type locationStore struct {
	levels    []locdomain.GeoLevel
	locations []locdomain.Location
}

func (s *locationStore) GeoLevels(_ context.Context, surveyUID uuid.UUID) ([]locdomain.GeoLevel, error) {
	var out []locdomain.GeoLevel
	for _, l := range s.levels {
		if l.SurveyUID == surveyUID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *locationStore) LocationsAtLevel(_ context.Context, surveyUID, geoLevelUID uuid.UUID) ([]locdomain.Location, error) {
	var out []locdomain.Location
	for _, l := range s.locations {
		if l.SurveyUID == surveyUID && l.GeoLevelUID == geoLevelUID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *locationStore) ReplaceGeoLevels(context.Context, uuid.UUID, []locdomain.GeoLevel) error {
	return nil
}
func (s *locationStore) ColumnMapping(context.Context, uuid.UUID) ([]locdomain.GeoLevelMapping, error) {
	return nil, nil
}
func (s *locationStore) SaveColumnMapping(context.Context, uuid.UUID, []locdomain.GeoLevelMapping) error {
	return nil
}
func (s *locationStore) Locations(context.Context, uuid.UUID) ([]locdomain.Location, error) {
	return nil, nil
}
func (s *locationStore) InsertLocations(context.Context, []locdomain.Location) error    { return nil }
func (s *locationStore) DeleteLocations(context.Context, uuid.UUID) error               { return nil }
func (s *locationStore) DeleteTargetLocationLinks(context.Context, uuid.UUID) error     { return nil }
func (s *locationStore) DeleteEnumeratorLocationLinks(context.Context, uuid.UUID) error { return nil }

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
	ctx         context.Context
	service     *services.EnumeratorService
	repo        *memoryEnumeratorRepository
	surveyUID   uuid.UUID
	districtUID uuid.UUID // location uid of district D1
}

// newFixture builds a District → PSU survey whose prime geo level is
// District: enumerators are assigned one level above the bottom.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	surveyUID := uuid.New()
	district := locdomain.GeoLevel{UID: uuid.New(), SurveyUID: surveyUID, Name: "District"}
	psu := locdomain.GeoLevel{UID: uuid.New(), SurveyUID: surveyUID, Name: "PSU", ParentUID: &district.UID}

	d1 := locdomain.Location{UID: uuid.New(), SurveyUID: surveyUID, GeoLevelUID: district.UID, LocationID: "D1", Name: "North"}
	p1 := locdomain.Location{UID: uuid.New(), SurveyUID: surveyUID, GeoLevelUID: psu.UID, LocationID: "P1", Name: "Alpha", ParentUID: &d1.UID}

	store := &locationStore{
		levels:    []locdomain.GeoLevel{district, psu},
		locations: []locdomain.Location{d1, p1},
	}

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	bus := eventbus.NewEventPublisher(log)

	surveyRepo := &memorySurveyRepository{surveys: map[uuid.UUID]surveydomain.Survey{
		surveyUID: {
			UID: surveyUID, Key: "s1", Name: "S", State: surveydomain.StateActive,
			PrimeGeoLevelUID: &district.UID,
		},
	}}

	locations := locservices.NewLocationService(store, bus)
	surveys := surveyservices.NewSurveyService(surveyRepo, locations, bus)
	repo := &memoryEnumeratorRepository{}

	return &fixture{
		ctx:         composables.WithTx(context.Background(), nopTx{}),
		service:     services.NewEnumeratorService(repo, surveys, locations, bus),
		repo:        repo,
		surveyUID:   surveyUID,
		districtUID: d1.UID,
	}
}

const rosterHeader = "enumerator_id,name,email,phone,location_id\n"

func TestEnumeratorUploadResolvesAtPrimeLevel(t *testing.T) {
	f := newFixture(t)
	raw := rosterHeader + "E1,Asha,asha@example.org,555,D1\n"

	result, err := f.service.Upload(f.ctx, f.surveyUID, raw, services.UploadParams{Mode: services.ModeOverwrite})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)

	roster, err := f.service.Roster(f.ctx, f.surveyUID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	require.NotNil(t, roster[0].LocationUID)
	assert.Equal(t, f.districtUID, *roster[0].LocationUID)
}

func TestEnumeratorUploadRejectsBottomLevelIDs(t *testing.T) {
	f := newFixture(t)
	// P1 exists, but at the PSU level, below the prime level
	raw := rosterHeader + "E1,Asha,asha@example.org,555,P1\n"

	_, err := f.service.Upload(f.ctx, f.surveyUID, raw, services.UploadParams{Mode: services.ModeOverwrite})
	var rErr *tabular.RecordError
	require.ErrorAs(t, err, &rErr)
	require.Len(t, rErr.SummaryByErrorType, 1)
	rule := rErr.SummaryByErrorType[0]
	assert.Equal(t, "unresolved_location_ids", rule.ErrorType)
	assert.Contains(t, rule.Message, "prime geo level")
}

func TestEnumeratorUploadAppendFlagsExistingIDs(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Upload(f.ctx, f.surveyUID, rosterHeader+"E1,Asha,a@example.org,1,D1\n",
		services.UploadParams{Mode: services.ModeOverwrite})
	require.NoError(t, err)

	result, err := f.service.Upload(f.ctx, f.surveyUID,
		rosterHeader+"E1,Asha,a@example.org,1,D1\nE2,Ravi,r@example.org,2,D1\n",
		services.UploadParams{Mode: services.ModeAppend, AcceptPartial: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Rejected)

	roster, err := f.service.Roster(f.ctx, f.surveyUID)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "E1", roster[0].EnumeratorID)
	assert.Equal(t, "E2", roster[1].EnumeratorID)
}
