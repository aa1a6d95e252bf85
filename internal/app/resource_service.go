package app

import (
	"context"
	"strings"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/clock"
	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/domain"
)

type ResourceService struct {
	repo  ResourceRepository
	clock clock.Clock
}

func NewResourceService(repo ResourceRepository, clk clock.Clock) *ResourceService {
	return &ResourceService{
		repo:  repo,
		clock: clk,
	}
}

type CreateResourceInput struct {
	Name        string
	Kind        domain.ResourceKind
	Capacity    int
	Overbooking int
}

func (s *ResourceService) CreateResource(ctx context.Context, in CreateResourceInput) (domain.Resource, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Resource{}, domain.Reject(domain.CodeInvalidArgument, "name is required")
	}
	if !in.Kind.Valid() {
		return domain.Resource{}, domain.Reject(domain.CodeInvalidArgument, "kind must be %q or %q", domain.KindExclusive, domain.KindPartial)
	}
	if in.Overbooking < 0 {
		return domain.Resource{}, domain.Reject(domain.CodeInvalidArgument, "overbooking must not be negative")
	}

	capacity, overbooking := in.Capacity, in.Overbooking
	switch in.Kind {
	case domain.KindExclusive:
		// An exclusive resource admits one holder at a time.
		capacity, overbooking = 1, 0
	case domain.KindPartial:
		if capacity < 1 {
			return domain.Resource{}, domain.Reject(domain.CodeInvalidArgument, "capacity must be at least 1")
		}
	}

	res := domain.Resource{
		ID:          newUUID(),
		Name:        name,
		Kind:        in.Kind,
		Capacity:    capacity,
		Overbooking: overbooking,
		Active:      true,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.repo.CreateResource(ctx, res); err != nil {
		return domain.Resource{}, surface(err)
	}
	return res, nil
}

func (s *ResourceService) ListResources(ctx context.Context) ([]domain.Resource, error) {
	out, err := s.repo.ListResources(ctx)
	if err != nil {
		return nil, surface(err)
	}
	return out, nil
}

// SetActive toggles whether new bookings are accepted. Existing reservations
// are left as they are.
func (s *ResourceService) SetActive(ctx context.Context, id string, active bool) error {
	if id == "" {
		return domain.Reject(domain.CodeInvalidArgument, "resource id is required")
	}
	return surface(s.repo.SetResourceActive(ctx, id, active))
}
