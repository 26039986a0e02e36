// Package httpapi exposes the delivery subsystem over a JSON HTTP API:
// checkout, dispatch actions, fleet management, live tracking and phone
// verification.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"delivro/internal/auth"
	"delivro/internal/catalog"
	"delivro/internal/dispatch"
	"delivro/internal/tracking"
	"delivro/internal/verify"
	"delivro/repository"
)

// Server wires the HTTP handlers to the dispatch controller and the
// collaborating subsystems. All state mutations on orders and drivers go
// through the controller; the repositories are used read-only here, except
// for driver registration and position updates.
type Server struct {
	log      *logrus.Logger
	dispatch *dispatch.Controller
	orders   *repository.OrderRepository
	drivers  repository.DriverRepositoryI
	profiles repository.ProfileRepositoryI
	catalog  *catalog.Catalog
	tracking *tracking.Manager
	verify   *verify.Service
	jitter   *tracking.Jitter
	secret   string
}

// Deps carries the collaborators a Server needs. Jitter may be nil (tests).
type Deps struct {
	Log      *logrus.Logger
	Dispatch *dispatch.Controller
	Orders   *repository.OrderRepository
	Drivers  repository.DriverRepositoryI
	Profiles repository.ProfileRepositoryI
	Catalog  *catalog.Catalog
	Tracking *tracking.Manager
	Verify   *verify.Service
	Jitter   *tracking.Jitter
	Secret   string
}

// NewServer builds a Server from its dependencies.
func NewServer(d Deps) *Server {
	return &Server{
		log:      d.Log,
		dispatch: d.Dispatch,
		orders:   d.Orders,
		drivers:  d.Drivers,
		profiles: d.Profiles,
		catalog:  d.Catalog,
		tracking: d.Tracking,
		verify:   d.Verify,
		jitter:   d.Jitter,
		secret:   d.Secret,
	}
}

// Router returns the fully wired HTTP handler. Health, verification and
// catalog browsing are reachable without a token; everything else requires
// a Bearer JWT.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/api/verify/request", s.handleVerifyRequest).Methods(http.MethodPost)
	r.HandleFunc("/api/verify/confirm", s.handleVerifyConfirm).Methods(http.MethodPost)
	r.HandleFunc("/api/catalog/stores", s.handleListStores).Methods(http.MethodGet)
	r.HandleFunc("/api/catalog/stores/{id}", s.handleGetStore).Methods(http.MethodGet)

	r.HandleFunc("/api/orders", s.handleCreateOrder).Methods(http.MethodPost)
	r.HandleFunc("/api/orders", s.handleListOrders).Methods(http.MethodGet)
	r.HandleFunc("/api/orders/{id}", s.handleGetOrder).Methods(http.MethodGet)
	r.HandleFunc("/api/orders/{id}/assign", s.handleAssignOrder).Methods(http.MethodPost)
	r.HandleFunc("/api/orders/{id}/complete", s.handleCompleteOrder).Methods(http.MethodPost)
	r.HandleFunc("/api/orders/{id}/cancel", s.handleCancelOrder).Methods(http.MethodPost)
	r.HandleFunc("/api/orders/{id}/track", s.handleTrackOrder).Methods(http.MethodGet)

	r.HandleFunc("/api/drivers", s.handleRegisterDriver).Methods(http.MethodPost)
	r.HandleFunc("/api/drivers", s.handleListDrivers).Methods(http.MethodGet)
	r.HandleFunc("/api/drivers/available", s.handleAvailableDrivers).Methods(http.MethodGet)
	r.HandleFunc("/api/drivers/{id}/status", s.handleDriverStatus).Methods(http.MethodPost)

	authn := auth.Middleware(s.secret, "/healthz", "/api/verify/", "/api/catalog/")
	return s.logMiddleware(authn(r))
}

func (s *Server) logMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"url":        r.URL.Path,
			"remoteAddr": r.RemoteAddr,
		}).Info("request")
		h.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
