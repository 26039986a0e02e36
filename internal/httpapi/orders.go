package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"delivro/internal/auth"
	"delivro/internal/dispatch"
	"delivro/models"
	"delivro/repository"
)

type createOrderRequest struct {
	Phone   string `json:"phone"`
	StoreID string `json:"store_id"`
	Items   []struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
		Note      string `json:"note,omitempty"`
	} `json:"items"`
	Location      models.Location `json:"location"`
	PaymentMethod string          `json:"payment_method"`
	CouponCode    string          `json:"coupon_code,omitempty"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	p, err := auth.RequireCustomerOrAdmin(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req createOrderRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	phone := req.Phone
	if phone == "" && p.Kind == auth.KindCustomer {
		phone = p.Name
	}
	if p.Kind == auth.KindCustomer && req.Phone != "" && req.Phone != p.Name {
		s.writeError(w, fmt.Errorf("%w: cannot place orders for another phone", auth.ErrForbidden))
		return
	}

	prof, err := s.profiles.GetByPhone(r.Context(), phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if prof == nil || !prof.IsVerified {
		s.writeError(w, fmt.Errorf("%w: phone %s is not verified", auth.ErrForbidden, phone))
		return
	}

	in := dispatch.PlaceInput{
		Phone:         phone,
		StoreID:       req.StoreID,
		Location:      req.Location,
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
		CouponCode:    req.CouponCode,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, dispatch.PlaceItem{ProductID: it.ProductID, Quantity: it.Quantity, Note: it.Note})
	}

	ord, err := s.dispatch.Place(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.WithFields(logrus.Fields{"order": ord.ID, "phone": phone, "total": ord.Total}).Info("order placed")
	s.writeJSON(w, http.StatusCreated, ord)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	p, err := auth.RequirePrincipal(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if p.Kind == auth.KindCustomer {
		list, err := s.orders.ListByPhone(r.Context(), p.Name)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, list)
		return
	}

	params := repository.ListOrdersAdminParams{}
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		for _, raw := range strings.Split(v, ",") {
			params.Statuses = append(params.Statuses, models.OrderStatus(strings.ToUpper(strings.TrimSpace(raw))))
		}
	}
	if v := q.Get("phone"); v != "" {
		params.Phone = &v
	}
	if v := q.Get("from"); v != "" {
		params.PlacedFrom = &v
	}
	if v := q.Get("to"); v != "" {
		params.PlacedTo = &v
	}
	if v := q.Get("page_size"); v != "" {
		params.PageSize, _ = strconv.Atoi(v)
	}
	if v := q.Get("after_seconds"); v != "" {
		params.AfterSeconds, _ = strconv.ParseInt(v, 10, 64)
	}
	params.AfterID = q.Get("after_id")

	list, err := s.orders.ListAdmin(r.Context(), params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	p, err := auth.RequirePrincipal(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	ord, err := s.orders.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ord == nil {
		s.writeError(w, &models.NotFoundError{Kind: "order", ID: id})
		return
	}
	if p.Kind == auth.KindCustomer && ord.Phone != p.Name {
		s.writeError(w, fmt.Errorf("%w: order belongs to another customer", auth.ErrForbidden))
		return
	}
	s.writeJSON(w, http.StatusOK, ord)
}

type assignRequest struct {
	DriverID int64 `json:"driver_id,omitempty"`
}

func (s *Server) handleAssignOrder(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireAdmin(r); err != nil {
		s.writeError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	var req assignRequest
	if r.ContentLength > 0 {
		if err := s.decode(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
	}

	if req.DriverID != 0 {
		if err := s.dispatch.Assign(r.Context(), id, req.DriverID); err != nil {
			s.writeError(w, err)
			return
		}
	} else if _, err := s.dispatch.AssignNearest(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	ord, err := s.orders.GetByID(r.Context(), id)
	if err != nil || ord == nil {
		s.writeError(w, &models.NotFoundError{Kind: "order", ID: id})
		return
	}
	if ord.DriverID != nil {
		s.jitterUntrack(*ord.DriverID)
	}
	if store, serr := s.catalog.StoreByID(ord.StoreID); serr == nil {
		if _, terr := s.tracking.StartForOrder(r.Context(), ord, store); terr != nil {
			s.log.WithError(terr).WithField("order", id).Warn("tracking feed not started")
		}
	}
	s.log.WithFields(logrus.Fields{"order": id, "driver": ord.DriverID}).Info("order assigned")
	s.writeJSON(w, http.StatusOK, ord)
}

func (s *Server) handleCompleteOrder(w http.ResponseWriter, r *http.Request) {
	p, err := auth.RequirePrincipal(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	switch p.Kind {
	case auth.KindAdmin:
	case auth.KindDriver:
		if err := s.requireAssignedDriver(r, p, id); err != nil {
			s.writeError(w, err)
			return
		}
	default:
		s.writeError(w, fmt.Errorf("%w: only the assigned driver or admin can complete deliveries", auth.ErrForbidden))
		return
	}
	if err := s.dispatch.Complete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.tracking.StopFor(id)
	ord, err := s.orders.GetByID(r.Context(), id)
	if err != nil || ord == nil {
		s.writeError(w, &models.NotFoundError{Kind: "order", ID: id})
		return
	}
	if ord.DriverID != nil {
		s.jitterTrack(*ord.DriverID)
	}
	s.log.WithField("order", id).Info("order delivered")
	s.writeJSON(w, http.StatusOK, ord)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	p, err := auth.RequirePrincipal(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	if p.Kind == auth.KindCustomer {
		ord, err := s.orders.GetByID(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if ord == nil {
			s.writeError(w, &models.NotFoundError{Kind: "order", ID: id})
			return
		}
		if ord.Phone != p.Name {
			s.writeError(w, fmt.Errorf("%w: order belongs to another customer", auth.ErrForbidden))
			return
		}
	}
	if err := s.dispatch.Cancel(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.tracking.StopFor(id)
	ord, err := s.orders.GetByID(r.Context(), id)
	if err != nil || ord == nil {
		s.writeError(w, &models.NotFoundError{Kind: "order", ID: id})
		return
	}
	if ord.DriverID != nil {
		s.jitterTrack(*ord.DriverID)
	}
	s.log.WithField("order", id).Info("order cancelled")
	s.writeJSON(w, http.StatusOK, ord)
}

type trackResponse struct {
	OrderID string             `json:"order_id"`
	Status  models.OrderStatus `json:"status"`
	Lat     float64            `json:"lat"`
	Lng     float64            `json:"lng"`
	Percent int                `json:"percent"`
}

// handleTrackOrder reports the courier position for an order. While the
// order is OUT_FOR_DELIVERY the feed runs lazily: the first poll starts it.
// Before dispatch the position is the store; after delivery it pins to the
// destination at 100%.
func (s *Server) handleTrackOrder(w http.ResponseWriter, r *http.Request) {
	p, err := auth.RequirePrincipal(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	ord, err := s.orders.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ord == nil {
		s.writeError(w, &models.NotFoundError{Kind: "order", ID: id})
		return
	}
	if p.Kind == auth.KindCustomer && ord.Phone != p.Name {
		s.writeError(w, fmt.Errorf("%w: order belongs to another customer", auth.ErrForbidden))
		return
	}

	store, err := s.catalog.StoreByID(ord.StoreID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := trackResponse{OrderID: ord.ID, Status: ord.Status}
	switch ord.Status {
	case models.OrderStatusOutForDelivery:
		feed, ferr := s.tracking.StartForOrder(r.Context(), ord, store)
		if ferr != nil {
			s.writeError(w, ferr)
			return
		}
		if pt, ok := feed.Latest(); ok {
			resp.Lat, resp.Lng, resp.Percent = pt.Lat, pt.Lng, pt.Percent
		} else {
			resp.Lat, resp.Lng = store.Lat, store.Lng
		}
	case models.OrderStatusDelivered:
		resp.Lat, resp.Lng, resp.Percent = ord.Location.Lat, ord.Location.Lng, 100
	default:
		resp.Lat, resp.Lng = store.Lat, store.Lng
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// requireAssignedDriver admits a driver principal only for the order it is
// carrying. Driver tokens name the driver; the roster resolves the rest.
func (s *Server) requireAssignedDriver(r *http.Request, p *auth.Principal, orderID string) error {
	ord, err := s.orders.GetByID(r.Context(), orderID)
	if err != nil {
		return err
	}
	if ord == nil {
		return &models.NotFoundError{Kind: "order", ID: orderID}
	}
	if ord.DriverID == nil {
		return fmt.Errorf("%w: order %s has no assigned driver", auth.ErrForbidden, orderID)
	}
	d, err := s.drivers.GetByID(r.Context(), *ord.DriverID)
	if err != nil {
		return err
	}
	if d == nil || d.Name != p.Name {
		return fmt.Errorf("%w: order %s is assigned to another driver", auth.ErrForbidden, orderID)
	}
	return nil
}

func (s *Server) jitterUntrack(driverID int64) {
	if s.jitter != nil {
		s.jitter.Untrack(driverID)
	}
}

func (s *Server) jitterTrack(driverID int64) {
	if s.jitter != nil {
		s.jitter.Track(driverID)
	}
}
