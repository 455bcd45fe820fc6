package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	locservices "github.com/fieldstream/fieldstream/modules/locations/services"
	"github.com/fieldstream/fieldstream/modules/surveys/domain"
	"github.com/fieldstream/fieldstream/pkg/eventbus"
)

// ErrSurveyNotFound is returned by repositories for unknown survey uids.
var ErrSurveyNotFound = errors.New("survey not found")

type SurveyRepository interface {
	Get(ctx context.Context, uid uuid.UUID) (domain.Survey, error)
	GetByKey(ctx context.Context, key string) (domain.Survey, error)
	List(ctx context.Context) ([]domain.Survey, error)
	Insert(ctx context.Context, survey domain.Survey) error
	Update(ctx context.Context, survey domain.Survey) error
	Delete(ctx context.Context, uid uuid.UUID) error
}

type SurveyCreatedEvent struct {
	Survey domain.Survey
}

type SurveyService struct {
	repo      SurveyRepository
	locations *locservices.LocationService
	publisher eventbus.EventBus
}

func NewSurveyService(repo SurveyRepository, locations *locservices.LocationService, publisher eventbus.EventBus) *SurveyService {
	return &SurveyService{repo: repo, locations: locations, publisher: publisher}
}

func (s *SurveyService) Get(ctx context.Context, uid uuid.UUID) (domain.Survey, error) {
	return s.repo.Get(ctx, uid)
}

func (s *SurveyService) List(ctx context.Context) ([]domain.Survey, error) {
	return s.repo.List(ctx)
}

func (s *SurveyService) Create(ctx context.Context, survey domain.Survey) (domain.Survey, error) {
	if survey.UID == uuid.Nil {
		survey.UID = uuid.New()
	}
	if survey.State == "" {
		survey.State = domain.StateDraft
	}
	if err := survey.Validate(); err != nil {
		return domain.Survey{}, err
	}
	if _, err := s.repo.GetByKey(ctx, survey.Key); err == nil {
		return domain.Survey{}, fmt.Errorf("survey key %q is already in use", survey.Key)
	} else if !errors.Is(err, ErrSurveyNotFound) {
		return domain.Survey{}, errors.Wrap(err, "check survey key")
	}
	if err := s.repo.Insert(ctx, survey); err != nil {
		return domain.Survey{}, errors.Wrap(err, "insert survey")
	}
	s.publisher.Publish(SurveyCreatedEvent{Survey: survey})
	return survey, nil
}

// SurveyPatch carries the updatable survey fields; nil means unchanged.
type SurveyPatch struct {
	Name  *string
	State *domain.State
}

func (s *SurveyService) Update(ctx context.Context, uid uuid.UUID, patch SurveyPatch) (domain.Survey, error) {
	survey, err := s.repo.Get(ctx, uid)
	if err != nil {
		return domain.Survey{}, err
	}
	if patch.Name != nil {
		survey.Name = *patch.Name
	}
	if patch.State != nil {
		survey.State = *patch.State
	}
	if err := survey.Validate(); err != nil {
		return domain.Survey{}, err
	}
	if err := s.repo.Update(ctx, survey); err != nil {
		return domain.Survey{}, errors.Wrap(err, "update survey")
	}
	return survey, nil
}

func (s *SurveyService) Delete(ctx context.Context, uid uuid.UUID) error {
	return s.repo.Delete(ctx, uid)
}

// SetPrimeGeoLevel configures the level enumerators are assigned at. The
// level must belong to the survey's validated hierarchy.
func (s *SurveyService) SetPrimeGeoLevel(ctx context.Context, surveyUID, geoLevelUID uuid.UUID) (domain.Survey, error) {
	survey, err := s.repo.Get(ctx, surveyUID)
	if err != nil {
		return domain.Survey{}, err
	}

	h, err := s.locations.Hierarchy(ctx, surveyUID)
	if err != nil {
		return domain.Survey{}, err
	}
	if !h.Contains(geoLevelUID) {
		return domain.Survey{}, fmt.Errorf("geo level %s does not belong to survey %q", geoLevelUID, survey.Key)
	}

	survey.PrimeGeoLevelUID = &geoLevelUID
	if err := s.repo.Update(ctx, survey); err != nil {
		return domain.Survey{}, errors.Wrap(err, "update survey")
	}
	return survey, nil
}

// PrimeGeoLevel resolves the survey's configured prime level, falling back
// to the hierarchy's bottom level when none is configured.
func (s *SurveyService) PrimeGeoLevel(ctx context.Context, surveyUID uuid.UUID) (uuid.UUID, error) {
	survey, err := s.repo.Get(ctx, surveyUID)
	if err != nil {
		return uuid.Nil, err
	}
	h, err := s.locations.Hierarchy(ctx, surveyUID)
	if err != nil {
		return uuid.Nil, err
	}
	if survey.PrimeGeoLevelUID == nil {
		return h.Bottom().UID, nil
	}
	chain, ok := h.PrimeAndAbove(*survey.PrimeGeoLevelUID)
	if !ok {
		// the hierarchy was replaced after the prime level was configured
		return uuid.Nil, fmt.Errorf("configured prime geo level no longer belongs to survey %q", survey.Key)
	}
	return chain[len(chain)-1].UID, nil
}
