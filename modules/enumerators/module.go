package enumerators

import (
	"github.com/sirupsen/logrus"

	"github.com/fieldstream/fieldstream/modules/enumerators/infrastructure/persistence"
	"github.com/fieldstream/fieldstream/modules/enumerators/presentation/controllers"
	"github.com/fieldstream/fieldstream/modules/enumerators/services"
	locservices "github.com/fieldstream/fieldstream/modules/locations/services"
	surveyservices "github.com/fieldstream/fieldstream/modules/surveys/services"
	"github.com/fieldstream/fieldstream/pkg/application"
)

func NewModule() application.Module {
	return &Module{}
}

type Module struct{}

// Register wires the enumerator service. The locations and surveys modules
// must be loaded first; their services resolve prime-geo-level locations.
func (m *Module) Register(app application.Application) error {
	locations := app.Service(locservices.LocationService{}).(*locservices.LocationService)
	surveys := app.Service(surveyservices.SurveyService{}).(*surveyservices.SurveyService)

	app.RegisterServices(
		services.NewEnumeratorService(
			persistence.NewEnumeratorRepository(),
			surveys,
			locations,
			app.EventPublisher(),
		),
	)

	app.RegisterControllers(
		controllers.NewEnumeratorsController(app),
	)

	app.EventPublisher().Subscribe(func(event services.EnumeratorsUploadedEvent) {
		app.Logger().WithFields(logrus.Fields{
			"survey_uid": event.SurveyUID,
			"mode":       event.Mode,
			"inserted":   event.Inserted,
			"rejected":   event.Rejected,
		}).Info("enumerators uploaded")
	})

	return nil
}

func (m *Module) Name() string {
	return "enumerators"
}
