package targets

import (
	"github.com/sirupsen/logrus"

	locservices "github.com/fieldstream/fieldstream/modules/locations/services"
	"github.com/fieldstream/fieldstream/modules/targets/infrastructure/persistence"
	"github.com/fieldstream/fieldstream/modules/targets/presentation/controllers"
	"github.com/fieldstream/fieldstream/modules/targets/services"
	"github.com/fieldstream/fieldstream/pkg/application"
)

func NewModule() application.Module {
	return &Module{}
}

type Module struct{}

// Register wires the target service. The locations module must be loaded
// first; its service resolves bottom-level location references.
func (m *Module) Register(app application.Application) error {
	locations := app.Service(locservices.LocationService{}).(*locservices.LocationService)

	app.RegisterServices(
		services.NewTargetService(
			persistence.NewTargetRepository(),
			locations,
			app.EventPublisher(),
		),
	)

	app.RegisterControllers(
		controllers.NewTargetsController(app),
	)

	app.EventPublisher().Subscribe(func(event services.TargetsUploadedEvent) {
		app.Logger().WithFields(logrus.Fields{
			"form_uid": event.FormUID,
			"mode":     event.Mode,
			"inserted": event.Inserted,
			"rejected": event.Rejected,
		}).Info("targets uploaded")
	})

	return nil
}

func (m *Module) Name() string {
	return "targets"
}
