package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/availability"
	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/clock"
	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/domain"
	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/events"
	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/policy"
)

// BookingService coordinates create, modify and cancel: validate outside
// the lock, then lock, re-read, decide and commit, then emit.
type BookingService struct {
	store       ReservationStore
	clock       clock.Clock
	policy      *policy.Holder
	sink        EventSink
	logger      *slog.Logger
	maxAttempts int
	backoffBase time.Duration
}

func NewBookingService(store ReservationStore, clk clock.Clock, pol *policy.Holder, opts ...BookingServiceOption) *BookingService {
	svc := &BookingService{
		store:       store,
		clock:       clk,
		policy:      pol,
		sink:        nopSink{},
		logger:      slog.Default(),
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type BookingServiceOption func(*BookingService)

// WithEventSink sets where booking events go.
func WithEventSink(sink EventSink) BookingServiceOption {
	return func(s *BookingService) {
		if sink != nil {
			s.sink = sink
		}
	}
}

func WithLogger(logger *slog.Logger) BookingServiceOption {
	return func(s *BookingService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRetry overrides the transient-failure retry budget.
func WithRetry(maxAttempts int, base time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if base > 0 {
			s.backoffBase = base
		}
	}
}

type CreateInput struct {
	Principal domain.Principal
	// OnBehalfOf names a different owner; only admins may set it.
	OnBehalfOf string
	ResourceID string
	Interval   domain.Interval
	Quantity   int
}

type ModifyInput struct {
	Principal     domain.Principal
	ReservationID string
	Interval      domain.Interval
	Quantity      int
}

type CancelInput struct {
	Principal     domain.Principal
	ReservationID string
}

func (s *BookingService) Create(ctx context.Context, in CreateInput) (domain.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Reservation{}, surface(err)
	}
	if in.Principal.ID == "" {
		return domain.Reservation{}, domain.Reject(domain.CodeForbidden, "principal required")
	}
	owner := in.Principal.ID
	if in.OnBehalfOf != "" && in.OnBehalfOf != owner {
		if !in.Principal.IsAdmin() {
			return domain.Reservation{}, domain.Reject(domain.CodeForbidden, "only admins may book for another principal")
		}
		owner = in.OnBehalfOf
	}

	snap := s.policy.Load()
	now := s.clock.Now()

	var res domain.Resource
	err := s.withRetry(ctx, "get resource", func(ctx context.Context) error {
		var err error
		res, err = s.store.GetResource(ctx, in.ResourceID)
		return err
	})
	if err != nil {
		return domain.Reservation{}, surface(err)
	}

	if err := precheck(snap, now, in.Interval, in.Quantity); err != nil {
		s.logRejected("create", in.Principal, res.ID, err)
		return domain.Reservation{}, err
	}

	reservation := domain.Reservation{
		ID:         newUUID(),
		ResourceID: res.ID,
		Owner:      owner,
		Interval:   in.Interval,
		Quantity:   in.Quantity,
		Status:     domain.StatusLive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var violation *events.Event
	err = s.withRetry(ctx, "create", func(ctx context.Context) error {
		violation = nil
		return s.store.WithResourceLock(ctx, res.ID, func(lockCtx context.Context) error {
			current, err := s.store.GetResource(lockCtx, res.ID)
			if err != nil {
				return err
			}
			overlapping, err := s.store.Overlaps(lockCtx, res.ID, in.Interval, "")
			if err != nil {
				return err
			}
			d := availability.Evaluate(availability.Request{
				Resource:    current,
				Interval:    in.Interval,
				Quantity:    in.Quantity,
				Overlapping: overlapping,
			})
			if d.Corrupt {
				violation = s.violationEvent(reservation, in.Principal.ID, now, d)
				return domain.Reject(domain.CodeInvariantViolation, "resource %s exceeds its ceiling (peak %d)", res.ID, d.Peak)
			}
			if !d.Admit {
				return d.Err()
			}
			if err := lockCtx.Err(); err != nil {
				return domain.Reject(domain.CodeTimeout, "deadline reached before commit")
			}
			return s.store.Insert(lockCtx, reservation)
		})
	})
	if violation != nil {
		s.sink.Emit(ctx, *violation)
	}
	if err != nil {
		s.logRejected("create", in.Principal, res.ID, err)
		return domain.Reservation{}, surface(err)
	}

	s.logger.Info("booking created",
		"reservation_id", reservation.ID,
		"resource_id", reservation.ResourceID,
		"owner", reservation.Owner,
		"quantity", reservation.Quantity,
	)
	s.sink.Emit(ctx, events.FromReservation(events.KindBookingCreated, reservation, in.Principal.ID, now))
	return reservation, nil
}

func (s *BookingService) Modify(ctx context.Context, in ModifyInput) (domain.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Reservation{}, surface(err)
	}
	if in.Principal.ID == "" {
		return domain.Reservation{}, domain.Reject(domain.CodeForbidden, "principal required")
	}

	snap := s.policy.Load()
	now := s.clock.Now()

	current, err := s.loadReservation(ctx, in.Principal, in.ReservationID)
	if err != nil {
		return domain.Reservation{}, err
	}
	if !current.Live() {
		return domain.Reservation{}, domain.Reject(domain.CodeAlreadyCancelled, "reservation %s is cancelled", current.ID)
	}
	if sameTerms(current, in.Interval, in.Quantity) {
		return current, nil
	}

	if err := precheck(snap, now, in.Interval, in.Quantity); err != nil {
		s.logRejected("modify", in.Principal, current.ResourceID, err)
		return domain.Reservation{}, err
	}

	var (
		updated   domain.Reservation
		unchanged bool
		violation *events.Event
	)
	err = s.withRetry(ctx, "modify", func(ctx context.Context) error {
		violation = nil
		return s.store.WithResourceLock(ctx, current.ResourceID, func(lockCtx context.Context) error {
			latest, err := s.store.GetReservation(lockCtx, current.ID)
			if err != nil {
				return err
			}
			if !latest.Live() {
				return domain.Reject(domain.CodeAlreadyCancelled, "reservation %s is cancelled", latest.ID)
			}
			if sameTerms(latest, in.Interval, in.Quantity) {
				updated, unchanged = latest, true
				return nil
			}
			res, err := s.store.GetResource(lockCtx, latest.ResourceID)
			if err != nil {
				return err
			}
			overlapping, err := s.store.Overlaps(lockCtx, res.ID, in.Interval, latest.ID)
			if err != nil {
				return err
			}

			next := latest
			next.Interval = in.Interval
			next.Quantity = in.Quantity
			next.UpdatedAt = now

			d := availability.Evaluate(availability.Request{
				Resource:    res,
				Interval:    in.Interval,
				Quantity:    in.Quantity,
				Overlapping: overlapping,
				ExcludeID:   latest.ID,
			})
			if d.Corrupt {
				violation = s.violationEvent(next, in.Principal.ID, now, d)
				return domain.Reject(domain.CodeInvariantViolation, "resource %s exceeds its ceiling (peak %d)", res.ID, d.Peak)
			}
			if !d.Admit {
				return d.Err()
			}
			if err := lockCtx.Err(); err != nil {
				return domain.Reject(domain.CodeTimeout, "deadline reached before commit")
			}
			if err := s.store.Update(lockCtx, next); err != nil {
				return err
			}
			updated, unchanged = next, false
			return nil
		})
	})
	if violation != nil {
		s.sink.Emit(ctx, *violation)
	}
	if err != nil {
		s.logRejected("modify", in.Principal, current.ResourceID, err)
		return domain.Reservation{}, surface(err)
	}
	if unchanged {
		return updated, nil
	}

	s.logger.Info("booking modified",
		"reservation_id", updated.ID,
		"resource_id", updated.ResourceID,
		"quantity", updated.Quantity,
	)
	s.sink.Emit(ctx, events.FromReservation(events.KindBookingModified, updated, in.Principal.ID, now))
	return updated, nil
}

// Cancel flips a live reservation to cancelled. Cancelling twice returns the
// cancelled reservation again without a second event.
func (s *BookingService) Cancel(ctx context.Context, in CancelInput) (domain.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Reservation{}, surface(err)
	}
	if in.Principal.ID == "" {
		return domain.Reservation{}, domain.Reject(domain.CodeForbidden, "principal required")
	}

	now := s.clock.Now()
	current, err := s.loadReservation(ctx, in.Principal, in.ReservationID)
	if err != nil {
		return domain.Reservation{}, err
	}
	if !current.Live() {
		return current, nil
	}

	var (
		result  domain.Reservation
		already bool
	)
	err = s.withRetry(ctx, "cancel", func(ctx context.Context) error {
		return s.store.WithResourceLock(ctx, current.ResourceID, func(lockCtx context.Context) error {
			latest, err := s.store.GetReservation(lockCtx, current.ID)
			if err != nil {
				return err
			}
			if !latest.Live() {
				result, already = latest, true
				return nil
			}
			if err := lockCtx.Err(); err != nil {
				return domain.Reject(domain.CodeTimeout, "deadline reached before commit")
			}
			if err := s.store.Cancel(lockCtx, latest.ID, now); err != nil {
				return err
			}
			cancelledAt := now
			latest.Status = domain.StatusCancelled
			latest.CancelledAt = &cancelledAt
			latest.UpdatedAt = now
			result, already = latest, false
			return nil
		})
	})
	if err != nil {
		s.logRejected("cancel", in.Principal, current.ResourceID, err)
		return domain.Reservation{}, surface(err)
	}
	if already {
		return result, nil
	}

	s.logger.Info("booking cancelled", "reservation_id", result.ID, "resource_id", result.ResourceID)
	s.sink.Emit(ctx, events.FromReservation(events.KindBookingCancelled, result, in.Principal.ID, now))
	return result, nil
}

func (s *BookingService) loadReservation(ctx context.Context, p domain.Principal, id string) (domain.Reservation, error) {
	var r domain.Reservation
	err := s.withRetry(ctx, "get reservation", func(ctx context.Context) error {
		var err error
		r, err = s.store.GetReservation(ctx, id)
		return err
	})
	if err != nil {
		return domain.Reservation{}, surface(err)
	}
	if !p.CanActFor(r.Owner) {
		return domain.Reservation{}, domain.Reject(domain.CodeForbidden, "reservation %s belongs to another principal", id)
	}
	return r, nil
}

func (s *BookingService) violationEvent(r domain.Reservation, actor string, now time.Time, d availability.Decision) *events.Event {
	e := events.FromReservation(events.KindInvariantViolation, r, actor, now)
	e.Detail = "existing reservations exceed the resource ceiling"
	s.logger.Error("reservation ledger invariant violated",
		"resource_id", r.ResourceID,
		"peak", d.Peak,
		"interval_start", r.Interval.Start,
		"interval_end", r.Interval.End,
	)
	return &e
}

func (s *BookingService) logRejected(op string, p domain.Principal, resourceID string, err error) {
	s.logger.Debug("booking rejected",
		"op", op,
		"principal", p.ID,
		"resource_id", resourceID,
		"code", domain.CodeOf(err),
		"error", err,
	)
}

func precheck(snap *policy.Snapshot, now time.Time, iv domain.Interval, quantity int) error {
	if !iv.Valid() {
		return domain.Reject(domain.CodeIntervalInvalid, "end must be after start")
	}
	if quantity < 1 {
		return domain.Reject(domain.CodeInvalidQuantity, "quantity must be at least 1, got %d", quantity)
	}
	return snap.Check(now, iv)
}

func sameTerms(r domain.Reservation, iv domain.Interval, quantity int) bool {
	return r.Interval.Equal(iv) && r.Quantity == quantity
}
