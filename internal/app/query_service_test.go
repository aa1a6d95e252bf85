package app

import (
	"context"
	"testing"
	"time"
)

func TestQueryService_ReservationsOf(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	q := NewQueryService(h.store)

	first := h.create(t, alice, "cart", h.on(12, 9, 0, 10, 0), 3)
	second := h.create(t, alice, "lab", h.on(13, 9, 0, 10, 0), 1)
	h.create(t, bob, "cart", h.on(12, 9, 0, 10, 0), 3)

	got, err := q.ReservationsOf(ctx, ReservationsOfInput{Principal: alice})
	if err != nil {
		t.Fatalf("reservations of: %v", err)
	}
	if len(got) != 2 || got[0].ID != second.ID || got[1].ID != first.ID {
		t.Fatalf("expected alice's reservations newest first, got %+v", got)
	}

	window := h.on(12, 8, 0, 18, 0)
	got, err = q.ReservationsOf(ctx, ReservationsOfInput{Principal: alice, Window: &window})
	if err != nil {
		t.Fatalf("reservations of: %v", err)
	}
	if len(got) != 1 || got[0].ID != first.ID {
		t.Fatalf("window filter: got %+v", got)
	}

	_, err = q.ReservationsOf(ctx, ReservationsOfInput{Principal: bob, Owner: "alice"})
	expectCode(t, err, "FORBIDDEN")

	got, err = q.ReservationsOf(ctx, ReservationsOfInput{Principal: admin, Owner: "alice"})
	if err != nil || len(got) != 2 {
		t.Fatalf("admin listing: %v %+v", err, got)
	}
}

func TestQueryService_Occupancy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	q := NewQueryService(h.store)

	h.create(t, alice, "cart", h.on(12, 10, 0, 11, 0), 20)
	h.create(t, bob, "cart", h.on(12, 10, 30, 11, 30), 5)

	buckets, err := q.Occupancy(ctx, "cart", h.on(12, 10, 0, 12, 0), 30*time.Minute)
	if err != nil {
		t.Fatalf("occupancy: %v", err)
	}
	wantPeak := []int{20, 25, 5, 0}
	if len(buckets) != len(wantPeak) {
		t.Fatalf("expected %d buckets, got %d", len(wantPeak), len(buckets))
	}
	for i, b := range buckets {
		if b.Peak != wantPeak[i] || b.Available != 30-wantPeak[i] {
			t.Fatalf("bucket %d: got peak=%d available=%d", i, b.Peak, b.Available)
		}
	}

	_, err = q.Occupancy(ctx, "cart", h.on(12, 10, 0, 12, 0), 90*time.Second)
	expectCode(t, err, "INVALID_ARGUMENT")
	_, err = q.Occupancy(ctx, "gym", h.on(12, 10, 0, 12, 0), time.Hour)
	expectCode(t, err, "NOT_FOUND")
}
