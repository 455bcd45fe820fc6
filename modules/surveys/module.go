package surveys

import (
	locservices "github.com/fieldstream/fieldstream/modules/locations/services"
	"github.com/fieldstream/fieldstream/modules/surveys/infrastructure/persistence"
	"github.com/fieldstream/fieldstream/modules/surveys/presentation/controllers"
	"github.com/fieldstream/fieldstream/modules/surveys/services"
	"github.com/fieldstream/fieldstream/pkg/application"
)

func NewModule() application.Module {
	return &Module{}
}

type Module struct{}

// Register wires the survey service. The locations module must be loaded
// first; its service resolves prime-geo-level references.
func (m *Module) Register(app application.Application) error {
	locations := app.Service(locservices.LocationService{}).(*locservices.LocationService)

	app.RegisterServices(
		services.NewSurveyService(
			persistence.NewSurveyRepository(),
			locations,
			app.EventPublisher(),
		),
	)

	app.RegisterControllers(
		controllers.NewSurveysController(app),
	)

	return nil
}

func (m *Module) Name() string {
	return "surveys"
}
