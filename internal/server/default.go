package server

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/fieldstream/fieldstream/pkg/application"
	"github.com/fieldstream/fieldstream/pkg/configuration"
	"github.com/fieldstream/fieldstream/pkg/constants"
	"github.com/fieldstream/fieldstream/pkg/httpapi"
	"github.com/fieldstream/fieldstream/pkg/metrics"
	"github.com/fieldstream/fieldstream/pkg/middleware"
	"github.com/fieldstream/fieldstream/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
	Pool          *pgxpool.Pool
}

// Default assembles the production middleware stack and router.
func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	app := options.Application

	app.RegisterMiddleware(
		middleware.WithLogger(options.Logger),
		middleware.Provide(constants.AppKey, app),
		middleware.Provide(constants.PoolKey, options.Pool),
		middleware.Cors(options.Configuration.Origin),
	)

	if options.Configuration.Prometheus.Enabled {
		app.RegisterControllers(
			metrics.NewPrometheusController(options.Configuration.Prometheus.Path),
		)
	}

	return server.NewHTTPServer(
		app,
		http.HandlerFunc(notFound),
		http.HandlerFunc(methodNotAllowed),
	), nil
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	_ = httpapi.WriteError(w, http.StatusNotFound, "not_found", "resource not found", nil)
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	_ = httpapi.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
}
