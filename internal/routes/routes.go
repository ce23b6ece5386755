package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/stanstork/linkdoc-import/internal/authz"
	"github.com/stanstork/linkdoc-import/internal/handlers"
)

type Handlers struct {
	Jobs          *handlers.ImportJobHandler
	Notifications *handlers.NotificationHandler
	DB            handlers.Pinger
	JWTSecret     string
}

// NewRouter sets up the admin API routes
func NewRouter(h Handlers) *mux.Router {
	router := mux.NewRouter()

	// Health check routes
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	if h.DB != nil {
		router.HandleFunc("/ready", handlers.ReadinessCheck(h.DB)).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api").Subrouter()
	api.Use(authz.JWTMiddleware(h.JWTSecret))

	read := func(f http.HandlerFunc) http.Handler { return authz.RequireRoleHandler(authz.RoleViewer, f) }
	operate := func(f http.HandlerFunc) http.Handler { return authz.RequireRoleHandler(authz.RoleOperator, f) }

	api.Handle("/import-jobs", operate(h.Jobs.Enqueue)).Methods(http.MethodPost)
	api.Handle("/import-jobs", read(h.Jobs.List)).Methods(http.MethodGet)
	api.Handle("/import-jobs/stale", read(h.Jobs.Stale)).Methods(http.MethodGet)
	api.Handle("/import-jobs/stats", read(h.Jobs.Stats)).Methods(http.MethodGet)
	api.Handle("/import-jobs/run-once", operate(h.Jobs.RunOnce)).Methods(http.MethodPost)
	api.Handle("/import-jobs/{jobID:[0-9]+}", read(h.Jobs.Get)).Methods(http.MethodGet)
	api.Handle("/import-jobs/{jobID:[0-9]+}/events", read(h.Jobs.Events)).Methods(http.MethodGet)
	api.Handle("/import-jobs/{jobID:[0-9]+}/run", operate(h.Jobs.RunJob)).Methods(http.MethodPost)

	if h.Notifications != nil {
		api.Handle("/notifications", read(h.Notifications.List)).Methods(http.MethodGet)
	}

	return router
}
