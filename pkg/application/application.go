package application

import (
	"fmt"
	"reflect"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/fieldstream/fieldstream/pkg/eventbus"
)

// Module is a self-contained feature area that registers its services and
// controllers against the application on startup.
type Module interface {
	Name() string
	Register(app Application) error
}

// Controller registers its routes on the shared router. Key must be unique
// across the application; registering the same key twice panics early.
type Controller interface {
	Key() string
	Register(r *mux.Router)
}

type Application interface {
	Pool() *pgxpool.Pool
	Logger() *logrus.Logger
	EventPublisher() eventbus.EventBus

	RegisterServices(services ...interface{})
	Service(service interface{}) interface{}

	RegisterControllers(controllers ...Controller)
	Controllers() []Controller

	RegisterMiddleware(middleware ...mux.MiddlewareFunc)
	Middleware() []mux.MiddlewareFunc
}

type ApplicationOptions struct {
	Pool     *pgxpool.Pool
	EventBus eventbus.EventBus
	Logger   *logrus.Logger
}

func New(opts *ApplicationOptions) Application {
	return &application{
		pool:           opts.Pool,
		eventPublisher: opts.EventBus,
		logger:         opts.Logger,
		controllers:    make(map[string]Controller),
		services:       make(map[reflect.Type]interface{}),
	}
}

// application with a dynamically extendable service registry
type application struct {
	pool           *pgxpool.Pool
	eventPublisher eventbus.EventBus
	logger         *logrus.Logger
	services       map[reflect.Type]interface{}
	controllers    map[string]Controller
	controllerKeys []string
	middleware     []mux.MiddlewareFunc
}

func (a *application) Pool() *pgxpool.Pool {
	return a.pool
}

func (a *application) Logger() *logrus.Logger {
	return a.logger
}

func (a *application) EventPublisher() eventbus.EventBus {
	return a.eventPublisher
}

func (a *application) RegisterServices(services ...interface{}) {
	for _, service := range services {
		serviceType := reflect.TypeOf(service).Elem()
		a.services[serviceType] = service
	}
}

// Service returns the registered service matching the type of the given
// zero value, e.g. app.Service(services.GeoLevelService{}).
func (a *application) Service(service interface{}) interface{} {
	serviceType := reflect.TypeOf(service)
	svc, ok := a.services[serviceType]
	if !ok {
		panic(fmt.Sprintf("service %s not found", serviceType.Name()))
	}
	return svc
}

func (a *application) RegisterControllers(controllers ...Controller) {
	for _, controller := range controllers {
		key := controller.Key()
		if _, exists := a.controllers[key]; exists {
			panic(fmt.Sprintf("controller with key %q already registered", key))
		}
		a.controllers[key] = controller
		a.controllerKeys = append(a.controllerKeys, key)
	}
}

func (a *application) Controllers() []Controller {
	out := make([]Controller, 0, len(a.controllerKeys))
	for _, key := range a.controllerKeys {
		out = append(out, a.controllers[key])
	}
	return out
}

func (a *application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	a.middleware = append(a.middleware, middleware...)
}

func (a *application) Middleware() []mux.MiddlewareFunc {
	return a.middleware
}
