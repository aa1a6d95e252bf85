package availability

import (
	"time"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/domain"
)

// MaxBuckets bounds a single occupancy query.
const MaxBuckets = 1440

// Bucket is one step of an occupancy time series.
type Bucket struct {
	Interval  domain.Interval
	Peak      int
	Available int
}

// Series splits window into step-sized buckets (the last one may be shorter)
// and reports the peak occupancy and remaining units of each.
func Series(res domain.Resource, reservations []domain.Reservation, window domain.Interval, step time.Duration) ([]Bucket, error) {
	if !window.Valid() || step <= 0 {
		return nil, domain.Reject(domain.CodeIntervalInvalid, "window must be non-empty and step positive")
	}
	if n := (window.Duration() + step - 1) / step; n > MaxBuckets {
		return nil, domain.Reject(domain.CodeIntervalInvalid, "window spans %d buckets, limit is %d", n, MaxBuckets)
	}

	live := relevant(reservations, window, "")
	ceiling := res.Ceiling()

	var out []Bucket
	for start := window.Start; start.Before(window.End); start = start.Add(step) {
		end := start.Add(step)
		if end.After(window.End) {
			end = window.End
		}
		b := domain.Interval{Start: start, End: end}
		peak := PeakOccupancy(live, b)
		available := ceiling - peak
		if available < 0 {
			available = 0
		}
		out = append(out, Bucket{Interval: b, Peak: peak, Available: available})
	}
	return out, nil
}
