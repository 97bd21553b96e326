package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/madhavpai09/velo/internal/ingest"
	"github.com/madhavpai09/velo/internal/models"
	"github.com/madhavpai09/velo/internal/ride"
)

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var req ride.CreateRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	created, err := s.Rides.Create(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, created)
}

func (s *Server) handleRideStatus(w http.ResponseWriter, r *http.Request) {
	got, err := s.Rides.Status(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, rideStatusView(got))
}

func (s *Server) handleActiveRide(w http.ResponseWriter, r *http.Request) {
	got, err := s.Rides.ActiveForRider(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, rideStatusView(got))
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RiderID string `json:"rider_id"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	got, err := s.Rides.Cancel(r.Context(), body.RiderID, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, got)
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	got, err := s.Rides.VerifyOTP(r.Context(), mux.Vars(r)["id"], body.Code)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, got)
}

func (s *Server) handleRateRide(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RiderID string `json:"rider_id"`
		Rating  int    `json:"rating"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	got, err := s.Rides.Rate(r.Context(), body.RiderID, mux.Vars(r)["id"], body.Rating)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, got)
}

func (s *Server) handleRegisterDriver(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID   string       `json:"id"`
		Name string       `json:"name"`
		Loc  models.Coord `json:"loc"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	if body.ID == "" {
		body.ID = newID()
	}
	drv, err := s.Dir.Register(r.Context(), body.ID, body.Name, body.Loc)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, drv)
}

func (s *Server) handleGetDriver(w http.ResponseWriter, r *http.Request) {
	drv, err := s.Dir.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, drv)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	seen, err := s.Dir.Heartbeat(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]time.Time{"seen": seen})
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Available bool `json:"available"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.Dir.SetAvailable(r.Context(), mux.Vars(r)["id"], body.Available); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Loc models.Coord `json:"loc"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.Dir.UpdateLocation(r.Context(), id, body.Loc); err != nil {
		s.fail(w, err)
		return
	}
	s.publishLocation(id, body.Loc)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOpenOffer(w http.ResponseWriter, r *http.Request) {
	o, err := s.Rides.OpenOffer(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, o)
}

func (s *Server) handleCurrentRide(w http.ResponseWriter, r *http.Request) {
	got, err := s.Rides.CurrentForDriver(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, got)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	got, err := s.Rides.Accept(r.Context(), vars["id"], vars["offer_id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	// The code is the rider's to hold: they read it off their status poll
	// and tell it to the driver at pickup, so it never rides along here.
	s.respond(w, http.StatusOK, got)
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.Rides.Decline(r.Context(), vars["id"], vars["offer_id"]); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	got, err := s.Rides.Complete(r.Context(), vars["id"], vars["ride_id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, got)
}

func (s *Server) handleSchools(w http.ResponseWriter, r *http.Request) {
	out, err := s.Sched.Schools(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	out, err := s.Sched.Routes(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleAddStudent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name   string `json:"name"`
		School string `json:"school"`
		Grade  string `json:"grade"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	st, err := s.Sched.AddStudent(r.Context(), mux.Vars(r)["id"], body.Name, body.School, body.Grade)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, st)
}

func (s *Server) handleStudents(w http.ResponseWriter, r *http.Request) {
	out, err := s.Sched.Students(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RiderID   string `json:"rider_id"`
		StudentID string `json:"student_id"`
		RouteID   string `json:"route_id"`
		StopID    string `json:"stop_id"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	sub, err := s.Sched.Subscribe(r.Context(), body.RiderID, body.StudentID, body.RouteID, body.StopID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, subscriptionView(sub))
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.Sched.Subscription(r.Context(), r.URL.Query().Get("rider_id"), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, subscriptionView(sub))
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RiderID string `json:"rider_id"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	sub, err := s.Sched.Cancel(r.Context(), body.RiderID, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, sub)
}

func (s *Server) handleVerifyPickup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	sub, err := s.Sched.VerifyPickup(r.Context(), mux.Vars(r)["id"], body.Code)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, sub)
}

func (s *Server) handleVerifyDriver(verified bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Dir.SetVerified(r.Context(), mux.Vars(r)["id"], verified); err != nil {
			s.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleDriverLocationIngest is the bulk path used by vehicle gateways; it
// feeds the same directory update as the per-driver endpoint and mirrors the
// record onto Kafka when a producer is wired.
func (s *Server) handleDriverLocationIngest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DriverID string       `json:"driver_id"`
		Loc      models.Coord `json:"loc"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	if body.DriverID == "" {
		s.fail(w, models.ErrValidation)
		return
	}
	if err := s.Dir.UpdateLocation(r.Context(), body.DriverID, body.Loc); err != nil {
		s.fail(w, err)
		return
	}
	s.publishLocation(body.DriverID, body.Loc)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) publishLocation(driverID string, loc models.Coord) {
	if s.Kafka == nil {
		return
	}
	u := ingest.LocationUpdate{DriverID: driverID, Loc: loc, Available: true, SeenAt: time.Now().UTC()}
	if err := s.Kafka.PublishLocation(u); err != nil {
		s.logger.Warn("kafka publish failed", "driver_id", driverID, "error", err)
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func (s *Server) handleDriverWS(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		http.Error(w, "push disabled", http.StatusNotImplemented)
		return
	}
	id := mux.Vars(r)["id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.Hub.AddDriver(id, conn)
}

func (s *Server) handleRiderWS(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		http.Error(w, "push disabled", http.StatusNotImplemented)
		return
	}
	id := mux.Vars(r)["id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.Hub.AddRider(id, conn)
}

// rideStatusView exposes the pickup code on the rider-facing read while the
// ride is waiting for the handoff. The code is json:"-" on the model, so the
// driver-facing reads (open offer, current ride) never carry it; the driver
// only learns it from the rider at the car door.
type rideView struct {
	*models.Ride
	OTP string `json:"otp,omitempty"`
}

func rideStatusView(r *models.Ride) rideView {
	v := rideView{Ride: r}
	if r.Status == models.RideAccepted {
		v.OTP = r.OTP
	}
	return v
}

// subscriptionView exposes the day code to the record's owner. The code is
// json:"-" on the model so it never rides along accidentally elsewhere.
type subView struct {
	*models.Subscription
	DayCode string `json:"day_code,omitempty"`
}

func subscriptionView(sub *models.Subscription) subView {
	v := subView{Subscription: sub}
	if sub.Status == models.SubscriptionActive {
		v.DayCode = sub.DayOTP
	}
	return v
}
