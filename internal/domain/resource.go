package domain

import "time"

type ResourceKind string

const (
	// KindExclusive is a whole space (a laboratory); capacity is logically 1.
	KindExclusive ResourceKind = "exclusive"
	// KindPartial is a pool of interchangeable units (a cart of tablets).
	KindPartial ResourceKind = "partial"
)

func (k ResourceKind) Valid() bool {
	return k == KindExclusive || k == KindPartial
}

// Resource is a bookable space or pool. Kind and Capacity never change once
// reservations exist.
type Resource struct {
	ID          string
	Name        string
	Kind        ResourceKind
	Capacity    int
	Overbooking int
	Active      bool
	CreatedAt   time.Time
}

// Ceiling is the maximum instantaneous quantity the resource admits.
func (r Resource) Ceiling() int {
	if r.Kind == KindExclusive {
		return 1
	}
	return r.Capacity + r.Overbooking
}
