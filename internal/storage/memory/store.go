// Package memory is an in-process reservation ledger. It honours the same
// locking and commit contract as the Postgres store and backs tests and
// single-node deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/domain"
)

type Store struct {
	mu           sync.RWMutex
	resources    map[string]domain.Resource
	reservations map[string]domain.Reservation

	locksMu     sync.Mutex
	locks       map[string]chan struct{}
	lockTimeout time.Duration
}

type Option func(*Store)

// WithLockTimeout bounds how long WithResourceLock waits for a busy
// resource, in addition to any context deadline. Running out of this wait
// is reported as a transient failure; only the caller's own deadline yields
// TIMEOUT.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.lockTimeout = d
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		resources:    make(map[string]domain.Resource),
		reservations: make(map[string]domain.Reservation),
		locks:        make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// txn stages writes made under a resource lock until fn returns.
type txn struct {
	resourceID string
	writes     map[string]domain.Reservation
}

type txKey struct{}

func txFromContext(ctx context.Context) *txn {
	tx, _ := ctx.Value(txKey{}).(*txn)
	return tx
}

func (s *Store) lockFor(resourceID string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[resourceID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[resourceID] = ch
	}
	return ch
}

func (s *Store) acquire(ctx context.Context, resourceID string) (func(), error) {
	waitCtx := ctx
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	ch := s.lockFor(resourceID)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, domain.Reject(domain.CodeTimeout, "waiting for lock on resource %s", resourceID)
		}
		return nil, fmt.Errorf("lock resource %s: %w", resourceID, domain.ErrTransient)
	}
}

func (s *Store) WithResourceLock(ctx context.Context, resourceID string, fn func(ctx context.Context) error) error {
	if tx := txFromContext(ctx); tx != nil {
		if tx.resourceID == resourceID {
			return fn(ctx)
		}
		return domain.Reject(domain.CodeConflict, "already holding the lock of resource %s", tx.resourceID)
	}

	s.mu.RLock()
	_, ok := s.resources[resourceID]
	s.mu.RUnlock()
	if !ok {
		return domain.Reject(domain.CodeNotFound, "resource %s", resourceID)
	}

	release, err := s.acquire(ctx, resourceID)
	if err != nil {
		return err
	}
	defer release()

	tx := &txn{resourceID: resourceID, writes: make(map[string]domain.Reservation)}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.Reject(domain.CodeTimeout, "deadline reached before commit")
	}

	s.mu.Lock()
	for id, r := range tx.writes {
		s.reservations[id] = r
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) GetResource(_ context.Context, id string) (domain.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.resources[id]
	if !ok {
		return domain.Resource{}, domain.Reject(domain.CodeNotFound, "resource %s", id)
	}
	return res, nil
}

func (s *Store) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	if tx := txFromContext(ctx); tx != nil {
		if r, ok := tx.writes[id]; ok {
			return r, nil
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.Reject(domain.CodeNotFound, "reservation %s", id)
	}
	return r, nil
}

func (s *Store) Overlaps(ctx context.Context, resourceID string, iv domain.Interval, excludeID string) ([]domain.Reservation, error) {
	tx := txFromContext(ctx)

	s.mu.RLock()
	var out []domain.Reservation
	for id, r := range s.reservations {
		if tx != nil {
			if staged, ok := tx.writes[id]; ok {
				r = staged
			}
		}
		if matches(r, resourceID, iv, excludeID) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	if tx != nil {
		for id, r := range tx.writes {
			if _, committed := s.committed(id); committed {
				continue
			}
			if matches(r, resourceID, iv, excludeID) {
				out = append(out, r)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Interval.Start.Equal(out[j].Interval.Start) {
			return out[i].Interval.Start.Before(out[j].Interval.Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func matches(r domain.Reservation, resourceID string, iv domain.Interval, excludeID string) bool {
	return r.ResourceID == resourceID && r.Live() && r.ID != excludeID && r.Interval.Overlaps(iv)
}

func (s *Store) committed(id string) (domain.Reservation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	return r, ok
}

func (s *Store) ListByOwner(_ context.Context, owner string, window *domain.Interval) ([]domain.Reservation, error) {
	s.mu.RLock()
	var out []domain.Reservation
	for _, r := range s.reservations {
		if r.Owner != owner {
			continue
		}
		if window != nil && !r.Interval.Overlaps(*window) {
			continue
		}
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Interval.Start.Equal(out[j].Interval.Start) {
			return out[i].Interval.Start.After(out[j].Interval.Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// heldTxn returns the open transaction when ctx holds the lock of resourceID.
func heldTxn(ctx context.Context, resourceID string) (*txn, error) {
	tx := txFromContext(ctx)
	if tx == nil || tx.resourceID != resourceID {
		return nil, domain.Reject(domain.CodeConflict, "write to resource %s without holding its lock", resourceID)
	}
	return tx, nil
}

func (s *Store) Insert(ctx context.Context, r domain.Reservation) error {
	tx, err := heldTxn(ctx, r.ResourceID)
	if err != nil {
		return err
	}
	if _, ok := tx.writes[r.ID]; ok {
		return domain.Reject(domain.CodeConflict, "reservation %s already exists", r.ID)
	}
	if _, ok := s.committed(r.ID); ok {
		return domain.Reject(domain.CodeConflict, "reservation %s already exists", r.ID)
	}
	tx.writes[r.ID] = r
	return nil
}

func (s *Store) Update(ctx context.Context, r domain.Reservation) error {
	tx, err := heldTxn(ctx, r.ResourceID)
	if err != nil {
		return err
	}
	current, err := s.GetReservation(ctx, r.ID)
	if err != nil {
		return err
	}
	if current.ResourceID != r.ResourceID {
		return domain.Reject(domain.CodeConflict, "reservation %s cannot move between resources", r.ID)
	}
	if !current.Live() {
		return domain.Reject(domain.CodeAlreadyCancelled, "reservation %s", r.ID)
	}
	tx.writes[r.ID] = r
	return nil
}

func (s *Store) Cancel(ctx context.Context, id string, at time.Time) error {
	current, err := s.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	tx, err := heldTxn(ctx, current.ResourceID)
	if err != nil {
		return err
	}
	if !current.Live() {
		return domain.Reject(domain.CodeAlreadyCancelled, "reservation %s", id)
	}
	cancelledAt := at
	current.Status = domain.StatusCancelled
	current.CancelledAt = &cancelledAt
	current.UpdatedAt = at
	tx.writes[id] = current
	return nil
}
