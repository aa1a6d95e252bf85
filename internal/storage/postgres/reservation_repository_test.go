package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/domain"
	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/testutil"
)

func newReservation(resourceID, owner string, iv domain.Interval, qty int) domain.Reservation {
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	return domain.Reservation{
		ID:         uuid.NewString(),
		ResourceID: resourceID,
		Owner:      owner,
		Interval:   iv,
		Quantity:   qty,
		Status:     domain.StatusLive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestReservationRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, context.Background(), pool)
	repo := NewReservationRepository(pool)

	t.Run("writes outside the lock are refused", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		resourceID := testutil.InsertResource(t, ctx, pool, "Cart", domain.KindPartial, 30)

		err := repo.Insert(ctx, newReservation(resourceID, "alice", testutil.Day(9, 10), 1))
		if !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected CONFLICT, got %v", err)
		}
	})

	t.Run("insert commits and rollback discards", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		resourceID := testutil.InsertResource(t, ctx, pool, "Cart", domain.KindPartial, 30)

		kept := newReservation(resourceID, "alice", testutil.Day(9, 10), 5)
		err := repo.WithResourceLock(ctx, resourceID, func(lockCtx context.Context) error {
			return repo.Insert(lockCtx, kept)
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}

		dropped := newReservation(resourceID, "alice", testutil.Day(10, 11), 5)
		boom := errors.New("boom")
		err = repo.WithResourceLock(ctx, resourceID, func(lockCtx context.Context) error {
			if err := repo.Insert(lockCtx, dropped); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		got, err := repo.GetReservation(ctx, kept.ID)
		if err != nil {
			t.Fatalf("get kept: %v", err)
		}
		if got.Quantity != 5 || got.Owner != "alice" || !got.Interval.Equal(kept.Interval) {
			t.Fatalf("unexpected reservation: %+v", got)
		}
		if _, err := repo.GetReservation(ctx, dropped.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected rolled back reservation to be missing, got %v", err)
		}
	})

	t.Run("overlaps is half-open and skips cancelled and excluded", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		resourceID := testutil.InsertResource(t, ctx, pool, "Cart", domain.KindPartial, 30)

		a := testutil.InsertReservation(t, ctx, pool, resourceID, "alice", testutil.Day(9, 10), 1)
		b := testutil.InsertReservation(t, ctx, pool, resourceID, "bob", testutil.Day(10, 11), 1)
		c := testutil.InsertReservation(t, ctx, pool, resourceID, "bob", testutil.Day(10, 12), 1)

		err := repo.WithResourceLock(ctx, resourceID, func(lockCtx context.Context) error {
			return repo.Cancel(lockCtx, c, time.Now())
		})
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}

		got, err := repo.Overlaps(ctx, resourceID, testutil.Day(10, 12), "")
		if err != nil {
			t.Fatalf("overlaps: %v", err)
		}
		if len(got) != 1 || got[0].ID != b {
			t.Fatalf("expected only %s, got %+v", b, got)
		}

		got, err = repo.Overlaps(ctx, resourceID, testutil.Day(9, 12), a)
		if err != nil {
			t.Fatalf("overlaps: %v", err)
		}
		if len(got) != 1 || got[0].ID != b {
			t.Fatalf("expected exclusion of %s, got %+v", a, got)
		}
	})

	t.Run("cancel twice reports already cancelled", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		resourceID := testutil.InsertResource(t, ctx, pool, "Lab", domain.KindExclusive, 1)
		id := testutil.InsertReservation(t, ctx, pool, resourceID, "alice", testutil.Day(9, 10), 1)

		cancel := func() error {
			return repo.WithResourceLock(ctx, resourceID, func(lockCtx context.Context) error {
				return repo.Cancel(lockCtx, id, time.Now())
			})
		}
		if err := cancel(); err != nil {
			t.Fatalf("first cancel: %v", err)
		}
		if err := cancel(); !errors.Is(err, domain.ErrAlreadyCancelled) {
			t.Fatalf("expected ALREADY_CANCELLED, got %v", err)
		}
		got, _ := repo.GetReservation(ctx, id)
		if got.Status != domain.StatusCancelled || got.CancelledAt == nil {
			t.Fatalf("expected cancelled reservation, got %+v", got)
		}
	})

	t.Run("update changes terms", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		resourceID := testutil.InsertResource(t, ctx, pool, "Cart", domain.KindPartial, 30)
		id := testutil.InsertReservation(t, ctx, pool, resourceID, "alice", testutil.Day(9, 10), 3)

		current, err := repo.GetReservation(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		current.Interval = testutil.Day(13, 15)
		current.Quantity = 7
		err = repo.WithResourceLock(ctx, resourceID, func(lockCtx context.Context) error {
			return repo.Update(lockCtx, current)
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		got, _ := repo.GetReservation(ctx, id)
		if got.Quantity != 7 || !got.Interval.Equal(testutil.Day(13, 15)) {
			t.Fatalf("update not applied: %+v", got)
		}
	})

	t.Run("list by owner newest first", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		resourceID := testutil.InsertResource(t, ctx, pool, "Cart", domain.KindPartial, 30)
		early := testutil.InsertReservation(t, ctx, pool, resourceID, "alice", testutil.Day(9, 10), 1)
		late := testutil.InsertReservation(t, ctx, pool, resourceID, "alice", testutil.Day(14, 15), 1)
		testutil.InsertReservation(t, ctx, pool, resourceID, "bob", testutil.Day(9, 10), 1)

		got, err := repo.ListByOwner(ctx, "alice", nil)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) != 2 || got[0].ID != late || got[1].ID != early {
			t.Fatalf("unexpected order: %+v", got)
		}

		window := testutil.Day(8, 12)
		got, err = repo.ListByOwner(ctx, "alice", &window)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) != 1 || got[0].ID != early {
			t.Fatalf("window filter: %+v", got)
		}
	})

	t.Run("unknown ids are not found", func(t *testing.T) {
		ctx := context.Background()
		if _, err := repo.GetResource(ctx, "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected NOT_FOUND, got %v", err)
		}
		if _, err := repo.GetReservation(ctx, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected NOT_FOUND, got %v", err)
		}
		err := repo.WithResourceLock(ctx, uuid.NewString(), func(context.Context) error { return nil })
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected NOT_FOUND, got %v", err)
		}
	})

	t.Run("lock wait bounded by deadline", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		resourceID := testutil.InsertResource(t, ctx, pool, "Lab", domain.KindExclusive, 1)

		held := make(chan struct{})
		release := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repo.WithResourceLock(ctx, resourceID, func(context.Context) error {
				close(held)
				<-release
				return nil
			})
		}()
		<-held

		waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()
		err := repo.WithResourceLock(waitCtx, resourceID, func(context.Context) error { return nil })
		close(release)
		wg.Wait()
		if !errors.Is(err, domain.ErrTimeout) {
			t.Fatalf("expected TIMEOUT, got %v", err)
		}
	})
}
