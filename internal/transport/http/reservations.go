package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/app"
	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/domain"
)

// BookingService is the minimal interface needed for reservation writes.
type BookingService interface {
	Create(ctx context.Context, in app.CreateInput) (domain.Reservation, error)
	Modify(ctx context.Context, in app.ModifyInput) (domain.Reservation, error)
	Cancel(ctx context.Context, in app.CancelInput) (domain.Reservation, error)
}

// ReservationLister is the minimal interface needed to list a principal's
// reservations.
type ReservationLister interface {
	ReservationsOf(ctx context.Context, in app.ReservationsOfInput) ([]domain.Reservation, error)
}

type createReservationRequest struct {
	ResourceID string    `json:"resource_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Quantity   int       `json:"quantity"`
	OnBehalfOf string    `json:"on_behalf_of,omitempty"`
}

func (r createReservationRequest) validate() string {
	if r.ResourceID == "" {
		return "resource_id is required"
	}
	if r.Start.IsZero() || r.End.IsZero() {
		return "start and end are required"
	}
	return ""
}

type modifyReservationRequest struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Quantity int       `json:"quantity"`
}

type reservationResponse struct {
	ID          string     `json:"id"`
	ResourceID  string     `json:"resource_id"`
	Owner       string     `json:"owner"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end"`
	Quantity    int        `json:"quantity"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

func toReservationResponse(r domain.Reservation) reservationResponse {
	return reservationResponse{
		ID:          r.ID,
		ResourceID:  r.ResourceID,
		Owner:       r.Owner,
		Start:       r.Interval.Start,
		End:         r.Interval.End,
		Quantity:    r.Quantity,
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		CancelledAt: r.CancelledAt,
	}
}

// HandleCreateReservation returns an HTTP handler for creating reservations.
func HandleCreateReservation(svc BookingService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthenticated")
			return
		}

		var req createReservationRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if msg := req.validate(); msg != "" {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, msg)
			return
		}

		res, err := svc.Create(r.Context(), app.CreateInput{
			Principal:  p,
			OnBehalfOf: req.OnBehalfOf,
			ResourceID: req.ResourceID,
			Interval:   domain.NewInterval(req.Start, req.End),
			Quantity:   req.Quantity,
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toReservationResponse(res))
	}
}

// HandleModifyReservation returns an HTTP handler that replaces the interval
// and quantity of a reservation.
func HandleModifyReservation(svc BookingService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthenticated")
			return
		}

		var req modifyReservationRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.Start.IsZero() || req.End.IsZero() {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "start and end are required")
			return
		}

		res, err := svc.Modify(r.Context(), app.ModifyInput{
			Principal:     p,
			ReservationID: mux.Vars(r)["id"],
			Interval:      domain.NewInterval(req.Start, req.End),
			Quantity:      req.Quantity,
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toReservationResponse(res))
	}
}

func HandleCancelReservation(svc BookingService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthenticated")
			return
		}

		res, err := svc.Cancel(r.Context(), app.CancelInput{
			Principal:     p,
			ReservationID: mux.Vars(r)["id"],
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toReservationResponse(res))
	}
}

// HandleListMyReservations serves GET /me/reservations. Admins may pass
// owner to list someone else's reservations.
func HandleListMyReservations(svc ReservationLister, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthenticated")
			return
		}

		window, err := optionalWindow(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidQuery, err.Error())
			return
		}

		list, err := svc.ReservationsOf(r.Context(), app.ReservationsOfInput{
			Principal: p,
			Owner:     r.URL.Query().Get("owner"),
			Window:    window,
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		resp := make([]reservationResponse, 0, len(list))
		for _, res := range list {
			resp = append(resp, toReservationResponse(res))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
