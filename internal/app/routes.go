package app

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quotagate/internal/common/logging"
	"quotagate/internal/common/ratelimit"
	"quotagate/internal/middleware"
	"quotagate/internal/quota"
)

const ordersAPI = "orders"

// SetupRoutes configures all HTTP routes for the application
func (app *App) SetupRoutes() *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Logging(logging.Component("http")))

	// Unguarded
	router.HandleFunc("/health", app.Handlers.HealthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// Admission controlled
	router.Handle("/orders", app.guard(ordersAPI, http.MethodPost)(http.HandlerFunc(app.Handlers.CreateOrder))).
		Methods(http.MethodPost)
	router.Handle("/orders", app.guard(ordersAPI, http.MethodGet)(http.HandlerFunc(app.Handlers.GetOrders))).
		Methods(http.MethodGet)

	return router
}

// guard puts the endpoint's own bucket and the client quota in front of a route
func (app *App) guard(api, verb string) func(http.Handler) http.Handler {
	adm := &ratelimit.Admission{
		Endpoint: app.Buckets.For(quota.HashKey(api, verb)),
		Clients:  app.Engine,
		Logger:   logging.Component("admission"),
		Metrics:  app.Metrics,
	}
	return adm.Middleware(api, verb)
}
