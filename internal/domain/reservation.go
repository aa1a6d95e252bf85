package domain

import "time"

type ReservationStatus string

const (
	StatusLive      ReservationStatus = "live"
	StatusCancelled ReservationStatus = "cancelled"
)

// Reservation records that Owner holds Quantity units of a resource over Interval.
type Reservation struct {
	ID          string
	ResourceID  string
	Owner       string
	Interval    Interval
	Quantity    int
	Status      ReservationStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CancelledAt *time.Time
}

func (r Reservation) Live() bool {
	return r.Status == StatusLive
}
