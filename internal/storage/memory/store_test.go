package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/domain"
)

var day = time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)

func span(h1, h2 int) domain.Interval {
	return domain.Interval{Start: day.Add(time.Duration(h1) * time.Hour), End: day.Add(time.Duration(h2) * time.Hour)}
}

func seedResource(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.CreateResource(context.Background(), domain.Resource{
		ID: id, Name: id, Kind: domain.KindPartial, Capacity: 10, Active: true,
	})
	if err != nil {
		t.Fatalf("create resource: %v", err)
	}
}

func reservation(id, resourceID, owner string, iv domain.Interval) domain.Reservation {
	return domain.Reservation{
		ID: id, ResourceID: resourceID, Owner: owner, Interval: iv, Quantity: 1, Status: domain.StatusLive,
	}
}

func TestStore_WritesRequireLock(t *testing.T) {
	s := New()
	seedResource(t, s, "lab")

	err := s.Insert(context.Background(), reservation("r1", "lab", "u", span(9, 10)))
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestStore_CommitsOnlyOnSuccess(t *testing.T) {
	s := New()
	seedResource(t, s, "lab")
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithResourceLock(ctx, "lab", func(ctx context.Context) error {
		if err := s.Insert(ctx, reservation("r1", "lab", "u", span(9, 10))); err != nil {
			return err
		}
		got, err := s.Overlaps(ctx, "lab", span(8, 12), "")
		if err != nil {
			return err
		}
		if len(got) != 1 {
			t.Fatalf("staged write not visible inside lock: %d", len(got))
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.GetReservation(ctx, "r1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("rolled back write must not persist, got %v", err)
	}

	err = s.WithResourceLock(ctx, "lab", func(ctx context.Context) error {
		return s.Insert(ctx, reservation("r1", "lab", "u", span(9, 10)))
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.GetReservation(ctx, "r1"); err != nil {
		t.Fatalf("committed write missing: %v", err)
	}
}

func TestStore_LockTimesOut(t *testing.T) {
	s := New()
	seedResource(t, s, "lab")

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.WithResourceLock(context.Background(), "lab", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.WithResourceLock(ctx, "lab", func(context.Context) error { return nil })
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
}

func TestStore_LockWaitCapIsTransient(t *testing.T) {
	s := New(WithLockTimeout(10 * time.Millisecond))
	seedResource(t, s, "lab")

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.WithResourceLock(context.Background(), "lab", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	err := s.WithResourceLock(context.Background(), "lab", func(context.Context) error { return nil })
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("lock wait cap must not report TIMEOUT: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err = s.WithResourceLock(ctx, "lab", func(context.Context) error { return nil })
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected TIMEOUT when the caller deadline expires first, got %v", err)
	}
}

func TestStore_DeadlineBeforeCommitDiscardsWrites(t *testing.T) {
	s := New()
	seedResource(t, s, "lab")

	ctx, cancel := context.WithCancel(context.Background())
	err := s.WithResourceLock(ctx, "lab", func(ctx context.Context) error {
		if err := s.Insert(ctx, reservation("r1", "lab", "u", span(9, 10))); err != nil {
			return err
		}
		cancel()
		return nil
	})
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if _, err := s.GetReservation(context.Background(), "r1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected write discarded, got %v", err)
	}
}

func TestStore_LockSerializesSameResource(t *testing.T) {
	s := New()
	seedResource(t, s, "lab")

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithResourceLock(context.Background(), "lab", func(context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected one holder at a time, saw %d", maxSeen)
	}
}

func TestStore_UnknownResource(t *testing.T) {
	s := New()
	err := s.WithResourceLock(context.Background(), "nope", func(context.Context) error { return nil })
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestStore_OverlapsAndCancel(t *testing.T) {
	s := New()
	seedResource(t, s, "lab")
	ctx := context.Background()

	err := s.WithResourceLock(ctx, "lab", func(ctx context.Context) error {
		for _, r := range []domain.Reservation{
			reservation("a", "lab", "u", span(9, 10)),
			reservation("b", "lab", "u", span(10, 11)),
			reservation("c", "lab", "v", span(14, 15)),
		} {
			if err := s.Insert(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, _ := s.Overlaps(ctx, "lab", span(10, 12), "")
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("half-open overlap: got %+v", got)
	}
	got, _ = s.Overlaps(ctx, "lab", span(9, 12), "a")
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("exclude: got %+v", got)
	}

	err = s.WithResourceLock(ctx, "lab", func(ctx context.Context) error {
		return s.Cancel(ctx, "b", day)
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ = s.Overlaps(ctx, "lab", span(9, 12), "")
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("cancelled reservation still counted: %+v", got)
	}
	err = s.WithResourceLock(ctx, "lab", func(ctx context.Context) error {
		return s.Cancel(ctx, "b", day)
	})
	if !errors.Is(err, domain.ErrAlreadyCancelled) {
		t.Fatalf("expected ALREADY_CANCELLED, got %v", err)
	}

	mine, _ := s.ListByOwner(ctx, "u", nil)
	if len(mine) != 2 || mine[0].ID != "b" || mine[1].ID != "a" {
		t.Fatalf("expected newest start first, got %+v", mine)
	}
	w := span(9, 10)
	mine, _ = s.ListByOwner(ctx, "u", &w)
	if len(mine) != 1 || mine[0].ID != "a" {
		t.Fatalf("window filter: got %+v", mine)
	}
}

func TestStore_SetResourceActive(t *testing.T) {
	s := New()
	seedResource(t, s, "lab")
	ctx := context.Background()

	if err := s.SetResourceActive(ctx, "lab", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	res, _ := s.GetResource(ctx, "lab")
	if res.Active {
		t.Fatalf("expected inactive")
	}
	if err := s.SetResourceActive(ctx, "missing", true); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
