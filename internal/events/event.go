// Package events carries booking outcomes to downstream collaborators
// (email, audit log) without ever holding up the booking path.
package events

import (
	"time"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/domain"
)

type Kind string

const (
	KindBookingCreated     Kind = "booking.created"
	KindBookingModified    Kind = "booking.modified"
	KindBookingCancelled   Kind = "booking.cancelled"
	KindInvariantViolation Kind = "booking.invariant_violation"
)

// Event is the payload every subscriber receives. Seq is assigned by the
// Dispatcher and increases monotonically across all resources.
type Event struct {
	Seq           uint64    `json:"seq"`
	Kind          Kind      `json:"kind"`
	ReservationID string    `json:"reservation_id"`
	ResourceID    string    `json:"resource_id"`
	PrincipalID   string    `json:"principal_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Quantity      int       `json:"quantity"`
	OccurredAt    time.Time `json:"occurred_at"`
	Detail        string    `json:"detail,omitempty"`
}

// FromReservation builds an event of kind k describing r, attributed to actor.
func FromReservation(k Kind, r domain.Reservation, actor string, at time.Time) Event {
	return Event{
		Kind:          k,
		ReservationID: r.ID,
		ResourceID:    r.ResourceID,
		PrincipalID:   actor,
		Start:         r.Interval.Start,
		End:           r.Interval.End,
		Quantity:      r.Quantity,
		OccurredAt:    at,
	}
}
