package modules

import (
	"github.com/fieldstream/fieldstream/modules/enumerators"
	"github.com/fieldstream/fieldstream/modules/locations"
	"github.com/fieldstream/fieldstream/modules/surveys"
	"github.com/fieldstream/fieldstream/modules/targets"
	"github.com/fieldstream/fieldstream/pkg/application"
)

// BuiltInModules is ordered by service dependency: surveys, targets and
// enumerators look up the services registered by the modules before them.
var BuiltInModules = []application.Module{
	locations.NewModule(),
	surveys.NewModule(),
	targets.NewModule(),
	enumerators.NewModule(),
}

func Load(app application.Application, mods ...application.Module) error {
	for _, module := range mods {
		if err := module.Register(app); err != nil {
			return err
		}
	}
	return nil
}
