package locations

import (
	"github.com/sirupsen/logrus"

	"github.com/fieldstream/fieldstream/modules/locations/infrastructure/persistence"
	"github.com/fieldstream/fieldstream/modules/locations/presentation/controllers"
	"github.com/fieldstream/fieldstream/modules/locations/services"
	"github.com/fieldstream/fieldstream/pkg/application"
)

func NewModule() application.Module {
	return &Module{}
}

type Module struct{}

func (m *Module) Register(app application.Application) error {
	app.RegisterServices(
		services.NewLocationService(
			persistence.NewLocationRepository(),
			app.EventPublisher(),
		),
	)

	app.RegisterControllers(
		controllers.NewLocationsController(app),
	)

	app.EventPublisher().Subscribe(func(event services.LocationsUploadedEvent) {
		app.Logger().WithFields(logrus.Fields{
			"survey_uid": event.SurveyUID,
			"mode":       event.Mode,
			"inserted":   event.Inserted,
			"rejected":   event.Rejected,
		}).Info("locations uploaded")
	})
	app.EventPublisher().Subscribe(func(event services.HierarchyReplacedEvent) {
		app.Logger().WithFields(logrus.Fields{
			"survey_uid": event.SurveyUID,
			"levels":     event.Levels,
		}).Info("geo level hierarchy replaced")
	})

	return nil
}

func (m *Module) Name() string {
	return "locations"
}
