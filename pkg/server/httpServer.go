package server

import (
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/mux"

	"github.com/fieldstream/fieldstream/pkg/application"
)

type HTTPServer struct {
	controllers []application.Controller
	middleware  []mux.MiddlewareFunc
	notFound    http.Handler
	notAllowed  http.Handler
}

func NewHTTPServer(app application.Application, notFound, notAllowed http.Handler) *HTTPServer {
	return &HTTPServer{
		controllers: app.Controllers(),
		middleware:  app.Middleware(),
		notFound:    notFound,
		notAllowed:  notAllowed,
	}
}

// chain applies the registered middleware to a handler outside the router,
// so fallback handlers get the same logging and context injection as routed
// ones.
func (s *HTTPServer) chain(h http.Handler) http.Handler {
	for i := len(s.middleware) - 1; i >= 0; i-- {
		h = s.middleware[i](h)
	}
	return h
}

func (s *HTTPServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.middleware...)
	for _, controller := range s.controllers {
		controller.Register(r)
	}
	r.NotFoundHandler = s.chain(s.notFound)
	r.MethodNotAllowedHandler = s.chain(s.notAllowed)
	return r
}

func (s *HTTPServer) Handler() http.Handler {
	return gziphandler.GzipHandler(s.Router())
}

func (s *HTTPServer) Start(socketAddress string) error {
	srv := &http.Server{
		Addr:              socketAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
