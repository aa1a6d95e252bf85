package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// RouterConfig wires services into the HTTP surface.
type RouterConfig struct {
	Bookings     BookingService
	Reservations ReservationLister
	Occupancy    OccupancyReader
	Resources    ResourceAdmin

	JWTSecret   []byte
	CORSOrigins []string
	Logger      *slog.Logger
	// Ping, when set, makes /health report store readiness.
	Ping func(ctx context.Context) error
}

// NewRouter builds the full handler chain: request logging, panic recovery,
// CORS, then routing with bearer authentication.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := mux.NewRouter()
	r.NotFoundHandler = NotFoundHandler()
	r.MethodNotAllowedHandler = MethodNotAllowedHandler()

	r.HandleFunc("/health", HandleHealth(cfg.Ping)).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(Authenticate(cfg.JWTSecret))
	api.HandleFunc("/reservations", HandleCreateReservation(cfg.Bookings, logger)).Methods(http.MethodPost)
	api.HandleFunc("/reservations/{id}", HandleModifyReservation(cfg.Bookings, logger)).Methods(http.MethodPatch)
	api.HandleFunc("/reservations/{id}", HandleCancelReservation(cfg.Bookings, logger)).Methods(http.MethodDelete)
	api.HandleFunc("/me/reservations", HandleListMyReservations(cfg.Reservations, logger)).Methods(http.MethodGet)
	api.HandleFunc("/resources/{id}/occupancy", HandleOccupancy(cfg.Occupancy, logger)).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(RequireAdmin)
	admin.HandleFunc("/resources", HandleListResources(cfg.Resources, logger)).Methods(http.MethodGet)
	admin.HandleFunc("/resources", HandleCreateResource(cfg.Resources, logger)).Methods(http.MethodPost)
	admin.HandleFunc("/resources/{id}/active", HandleSetResourceActive(cfg.Resources, logger)).Methods(http.MethodPut)

	return RequestLogger(Recover(CORS(cfg.CORSOrigins, r), logger), logger)
}
