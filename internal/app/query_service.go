package app

import (
	"context"
	"time"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/availability"
	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/domain"
)

// QueryService answers read-only questions about the ledger. Results are
// point-in-time and may be stale by the time the caller acts on them.
type QueryService struct {
	reader ReservationReader
}

func NewQueryService(reader ReservationReader) *QueryService {
	return &QueryService{reader: reader}
}

type ReservationsOfInput struct {
	Principal domain.Principal
	// Owner defaults to the principal; only admins may name someone else.
	Owner  string
	Window *domain.Interval
}

func (s *QueryService) ReservationsOf(ctx context.Context, in ReservationsOfInput) ([]domain.Reservation, error) {
	if in.Principal.ID == "" {
		return nil, domain.Reject(domain.CodeForbidden, "principal required")
	}
	owner := in.Owner
	if owner == "" {
		owner = in.Principal.ID
	}
	if !in.Principal.CanActFor(owner) {
		return nil, domain.Reject(domain.CodeForbidden, "cannot list reservations of another principal")
	}
	if in.Window != nil && !in.Window.Valid() {
		return nil, domain.Reject(domain.CodeIntervalInvalid, "end must be after start")
	}

	out, err := s.reader.ListByOwner(ctx, owner, in.Window)
	if err != nil {
		return nil, surface(err)
	}
	return out, nil
}

// Occupancy reports peak and available units per step across window.
func (s *QueryService) Occupancy(ctx context.Context, resourceID string, window domain.Interval, step time.Duration) ([]availability.Bucket, error) {
	if step <= 0 || step%time.Minute != 0 {
		return nil, domain.Reject(domain.CodeInvalidArgument, "step must be a positive whole number of minutes")
	}
	if !window.Valid() {
		return nil, domain.Reject(domain.CodeIntervalInvalid, "end must be after start")
	}

	res, err := s.reader.GetResource(ctx, resourceID)
	if err != nil {
		return nil, surface(err)
	}
	overlapping, err := s.reader.Overlaps(ctx, res.ID, window, "")
	if err != nil {
		return nil, surface(err)
	}
	return availability.Series(res, overlapping, window, step)
}
