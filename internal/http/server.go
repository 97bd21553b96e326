package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/madhavpai09/velo/internal/directory"
	"github.com/madhavpai09/velo/internal/dispatch"
	"github.com/madhavpai09/velo/internal/ingest"
	"github.com/madhavpai09/velo/internal/models"
	"github.com/madhavpai09/velo/internal/ride"
	"github.com/madhavpai09/velo/internal/schoolpool"
)

// Server is the HTTP surface over the dispatch engine. Every handler is a
// thin decode/call/encode shim; all rules live in the services underneath.
type Server struct {
	Rides  *ride.Service
	Dir    *directory.Directory
	Sched  *schoolpool.Scheduler
	Hub    *dispatch.Hub
	Kafka  *ingest.KafkaProducer
	mux    *mux.Router
	logger *slog.Logger
}

func NewServer(rides *ride.Service, dir *directory.Directory, sched *schoolpool.Scheduler, hub *dispatch.Hub, kafka *ingest.KafkaProducer, logger *slog.Logger) *Server {
	s := &Server{
		Rides:  rides,
		Dir:    dir,
		Sched:  sched,
		Hub:    hub,
		Kafka:  kafka,
		mux:    mux.NewRouter(),
		logger: logger,
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()

	// rider
	api.HandleFunc("/rides", s.handleCreateRide).Methods("POST")
	api.HandleFunc("/rides/{id}", s.handleRideStatus).Methods("GET")
	api.HandleFunc("/rides/{id}/cancel", s.handleCancelRide).Methods("POST")
	api.HandleFunc("/rides/{id}/verify-otp", s.handleVerifyOTP).Methods("POST")
	api.HandleFunc("/rides/{id}/rating", s.handleRateRide).Methods("POST")
	api.HandleFunc("/riders/{id}/ride", s.handleActiveRide).Methods("GET")

	// driver
	api.HandleFunc("/drivers", s.handleRegisterDriver).Methods("POST")
	api.HandleFunc("/drivers/{id}", s.handleGetDriver).Methods("GET")
	api.HandleFunc("/drivers/{id}/heartbeat", s.handleHeartbeat).Methods("POST")
	api.HandleFunc("/drivers/{id}/availability", s.handleAvailability).Methods("POST")
	api.HandleFunc("/drivers/{id}/location", s.handleLocation).Methods("POST")
	api.HandleFunc("/drivers/{id}/offer", s.handleOpenOffer).Methods("GET")
	api.HandleFunc("/drivers/{id}/ride", s.handleCurrentRide).Methods("GET")
	api.HandleFunc("/drivers/{id}/offers/{offer_id}/accept", s.handleAccept).Methods("POST")
	api.HandleFunc("/drivers/{id}/offers/{offer_id}/decline", s.handleDecline).Methods("POST")
	api.HandleFunc("/drivers/{id}/rides/{ride_id}/complete", s.handleComplete).Methods("POST")

	// school pool
	api.HandleFunc("/schools", s.handleSchools).Methods("GET")
	api.HandleFunc("/schools/{id}/routes", s.handleRoutes).Methods("GET")
	api.HandleFunc("/users/{id}/students", s.handleAddStudent).Methods("POST")
	api.HandleFunc("/users/{id}/students", s.handleStudents).Methods("GET")
	api.HandleFunc("/subscriptions", s.handleSubscribe).Methods("POST")
	api.HandleFunc("/subscriptions/{id}", s.handleSubscription).Methods("GET")
	api.HandleFunc("/subscriptions/{id}/cancel", s.handleCancelSubscription).Methods("POST")
	api.HandleFunc("/subscriptions/{id}/verify-pickup", s.handleVerifyPickup).Methods("POST")

	// admin
	api.HandleFunc("/admin/drivers/{id}/verify", s.handleVerifyDriver(true)).Methods("POST")
	api.HandleFunc("/admin/drivers/{id}/unverify", s.handleVerifyDriver(false)).Methods("POST")

	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocationIngest).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/drivers/{id}", s.handleDriverWS)
	s.mux.HandleFunc("/ws/riders/{id}", s.handleRiderWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			s.logger.Warn("response encode failed", "error", err)
		}
	}
}

// fail maps the service sentinels onto HTTP statuses. The body always names
// the error so clients can branch without parsing prose.
func (s *Server) fail(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	kind := "internal"
	switch {
	case errors.Is(err, models.ErrNotFound):
		code, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrConflict):
		code, kind = http.StatusConflict, "conflict"
	case errors.Is(err, models.ErrInvalidTransition):
		code, kind = http.StatusConflict, "invalid_transition"
	case errors.Is(err, models.ErrAlreadySubscribed):
		code, kind = http.StatusConflict, "already_subscribed"
	case errors.Is(err, models.ErrCapacityExceeded):
		code, kind = http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, models.ErrInvalidOTP):
		code, kind = http.StatusBadRequest, "invalid_otp"
	case errors.Is(err, models.ErrUnauthorized):
		code, kind = http.StatusForbidden, "unauthorized"
	case errors.Is(err, models.ErrValidation):
		code, kind = http.StatusBadRequest, "invalid_request"
	}
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.respond(w, code, map[string]string{"error": kind, "detail": err.Error()})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.ErrValidation
	}
	return nil
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
