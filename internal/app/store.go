package app

import (
	"context"
	"time"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/domain"
	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/events"
)

// ReservationStore is the reservation ledger. Insert, Update and Cancel
// must run inside WithResourceLock for the reservation's resource; stores
// refuse them with CONFLICT otherwise. Stores return typed domain errors
// for NOT_FOUND, CONFLICT and TIMEOUT, and wrap domain.ErrTransient for
// failures worth retrying.
type ReservationStore interface {
	GetResource(ctx context.Context, id string) (domain.Resource, error)
	GetReservation(ctx context.Context, id string) (domain.Reservation, error)
	// WithResourceLock runs fn while holding the exclusive lock for
	// resourceID. Writes made by fn are committed only if it returns nil.
	WithResourceLock(ctx context.Context, resourceID string, fn func(ctx context.Context) error) error
	// Overlaps returns the live reservations of resourceID intersecting iv,
	// minus excludeID when set.
	Overlaps(ctx context.Context, resourceID string, iv domain.Interval, excludeID string) ([]domain.Reservation, error)
	Insert(ctx context.Context, r domain.Reservation) error
	Update(ctx context.Context, r domain.Reservation) error
	Cancel(ctx context.Context, id string, at time.Time) error
}

// ReservationReader serves read-only projections; it never locks.
type ReservationReader interface {
	GetResource(ctx context.Context, id string) (domain.Resource, error)
	Overlaps(ctx context.Context, resourceID string, iv domain.Interval, excludeID string) ([]domain.Reservation, error)
	// ListByOwner returns owner's reservations intersecting window (all when
	// nil), newest start first.
	ListByOwner(ctx context.Context, owner string, window *domain.Interval) ([]domain.Reservation, error)
}

type ResourceRepository interface {
	CreateResource(ctx context.Context, r domain.Resource) error
	ListResources(ctx context.Context) ([]domain.Resource, error)
	SetResourceActive(ctx context.Context, id string, active bool) error
}

// EventSink receives booking events. Emit must not block.
type EventSink interface {
	Emit(ctx context.Context, e events.Event)
}

type nopSink struct{}

func (nopSink) Emit(context.Context, events.Event) {}

// Ledger is a store that serves both the coordinator and read projections.
type Ledger interface {
	ReservationStore
	ReservationReader
}
