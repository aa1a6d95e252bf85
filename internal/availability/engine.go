// Package availability decides whether a reservation request fits a
// resource. It performs no I/O and reads no clock.
package availability

import (
	"sort"
	"time"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/domain"
)

// Request is everything the engine needs for one decision.
type Request struct {
	Resource domain.Resource
	Interval domain.Interval
	Quantity int
	// Overlapping holds the live reservations of Resource that intersect
	// Interval. Entries that are cancelled or do not intersect are ignored.
	Overlapping []domain.Reservation
	// ExcludeID drops the reservation being modified from the overlap set.
	ExcludeID string
}

// Decision is Admit or Reject(code, detail).
type Decision struct {
	Admit     bool
	Code      domain.Code
	Detail    string
	Available int
	// Peak is the occupancy of the other reservations inside the interval.
	Peak int
	// Corrupt is set when the existing reservations already exceed the
	// ceiling, which means the ledger broke its own invariant.
	Corrupt bool
}

// Err converts a rejection into the typed domain error; nil for Admit.
func (d Decision) Err() error {
	if d.Admit {
		return nil
	}
	if d.Code == domain.CodeCapacityExceeded {
		return domain.CapacityExceeded(d.Available)
	}
	return &domain.Error{Code: d.Code, Detail: d.Detail}
}

func reject(code domain.Code, detail string) Decision {
	return Decision{Code: code, Detail: detail}
}

// Evaluate applies the admission rules in a fixed order: active flag, kind
// consistency, interval validity, then capacity.
func Evaluate(req Request) Decision {
	res := req.Resource
	if !res.Active {
		return reject(domain.CodeInactive, "resource is not active")
	}
	if res.Kind == domain.KindExclusive && req.Quantity != 1 {
		return reject(domain.CodeKindMismatch, "exclusive resources are booked with quantity 1")
	}
	if !req.Interval.Valid() {
		return reject(domain.CodeIntervalInvalid, "end must be after start")
	}

	others := relevant(req.Overlapping, req.Interval, req.ExcludeID)

	switch res.Kind {
	case domain.KindExclusive:
		if len(others) > 0 {
			peak := PeakOccupancy(others, req.Interval)
			return Decision{
				Code:      domain.CodeCapacityExceeded,
				Detail:    "resource already booked in the interval",
				Available: 0,
				Peak:      peak,
				Corrupt:   peak > 1,
			}
		}
		return Decision{Admit: true}
	case domain.KindPartial:
		ceiling := res.Ceiling()
		peak := PeakOccupancy(others, req.Interval)
		if peak+req.Quantity > ceiling {
			available := ceiling - peak
			if available < 0 {
				available = 0
			}
			return Decision{
				Code:      domain.CodeCapacityExceeded,
				Detail:    "not enough units in the interval",
				Available: available,
				Peak:      peak,
				Corrupt:   peak > ceiling,
			}
		}
		return Decision{Admit: true, Peak: peak, Available: ceiling - peak - req.Quantity}
	default:
		return reject(domain.CodeKindMismatch, "unknown resource kind")
	}
}

func relevant(in []domain.Reservation, window domain.Interval, excludeID string) []domain.Reservation {
	out := make([]domain.Reservation, 0, len(in))
	for _, r := range in {
		if excludeID != "" && r.ID == excludeID {
			continue
		}
		if !r.Live() || !r.Interval.Overlaps(window) {
			continue
		}
		out = append(out, r)
	}
	return out
}

type point struct {
	at    time.Time
	delta int
}

// PeakOccupancy returns the largest instantaneous quantity inside window
// across live reservations. At equal instants ends are applied before
// starts, so back-to-back reservations do not stack.
func PeakOccupancy(reservations []domain.Reservation, window domain.Interval) int {
	points := make([]point, 0, 2*len(reservations))
	for _, r := range reservations {
		if !r.Live() || !r.Interval.Overlaps(window) {
			continue
		}
		start, end := r.Interval.Start, r.Interval.End
		if start.Before(window.Start) {
			start = window.Start
		}
		if end.After(window.End) {
			end = window.End
		}
		points = append(points, point{at: start, delta: r.Quantity}, point{at: end, delta: -r.Quantity})
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].at.Equal(points[j].at) {
			return points[i].delta < points[j].delta
		}
		return points[i].at.Before(points[j].at)
	})

	peak, running := 0, 0
	for _, p := range points {
		running += p.delta
		if running > peak {
			peak = running
		}
	}
	return peak
}
