package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"delivro/internal/auth"
	"delivro/models"
)

type registerDriverRequest struct {
	Name    string  `json:"name"`
	Phone   string  `json:"phone"`
	Vehicle string  `json:"vehicle"`
	Status  string  `json:"status,omitempty"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

func (s *Server) handleRegisterDriver(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireAdmin(r); err != nil {
		s.writeError(w, err)
		return
	}
	var req registerDriverRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	status := models.DriverStatusOffline
	if req.Status != "" {
		status = models.DriverStatus(req.Status)
	}
	d, err := s.drivers.Create(r.Context(), &models.Driver{
		Name:    req.Name,
		Phone:   req.Phone,
		Vehicle: models.Vehicle(req.Vehicle),
		Status:  status,
		Lat:     req.Lat,
		Lng:     req.Lng,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jitterTrack(d.ID)
	s.log.WithFields(logrus.Fields{"driver": d.ID, "name": d.Name}).Info("driver registered")
	s.writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleListDrivers(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireAdmin(r); err != nil {
		s.writeError(w, err)
		return
	}
	list, err := s.drivers.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// handleAvailableDrivers lists ACTIVE drivers sorted by distance from the
// given point (defaults to the first catalog store when omitted).
func (s *Server) handleAvailableDrivers(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireAdmin(r); err != nil {
		s.writeError(w, err)
		return
	}
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		stores := s.catalog.Stores()
		if len(stores) == 0 {
			s.writeError(w, models.Validationf("lat and lng query parameters are required"))
			return
		}
		lat, lng = stores[0].Lat, stores[0].Lng
	}
	list, err := s.drivers.ListAvailable(r.Context(), lat, lng)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

type driverStatusRequest struct {
	Status string `json:"status"`
}

// handleDriverStatus flips a driver between ACTIVE and OFFLINE. BUSY is
// dispatch-owned and rejected here.
func (s *Server) handleDriverStatus(w http.ResponseWriter, r *http.Request) {
	p, err := auth.RequirePrincipal(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if p.Kind != auth.KindAdmin && p.Kind != auth.KindDriver {
		s.writeError(w, fmt.Errorf("%w: only driver or admin can change driver status", auth.ErrForbidden))
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, models.Validationf("invalid driver id"))
		return
	}
	if p.Kind == auth.KindDriver {
		self, err := s.drivers.GetByID(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if self == nil {
			s.writeError(w, &models.NotFoundError{Kind: "driver", ID: itoa(id)})
			return
		}
		if self.Name != p.Name {
			s.writeError(w, fmt.Errorf("%w: a driver may only change their own status", auth.ErrForbidden))
			return
		}
	}
	var req driverStatusRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	status := models.DriverStatus(req.Status)
	if status != models.DriverStatusActive && status != models.DriverStatusOffline {
		s.writeError(w, models.Validationf("status must be ACTIVE or OFFLINE"))
		return
	}
	if err := s.drivers.SetStatus(r.Context(), id, status, nil); err != nil {
		s.writeError(w, err)
		return
	}
	d, err := s.drivers.GetByID(r.Context(), id)
	if err != nil || d == nil {
		s.writeError(w, &models.NotFoundError{Kind: "driver", ID: itoa(id)})
		return
	}
	s.log.WithFields(logrus.Fields{"driver": id, "status": status}).Info("driver status changed")
	s.writeJSON(w, http.StatusOK, d)
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
