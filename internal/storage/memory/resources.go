package memory

import (
	"context"
	"sort"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/domain"
)

func (s *Store) CreateResource(_ context.Context, r domain.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[r.ID]; ok {
		return domain.Reject(domain.CodeConflict, "resource %s already exists", r.ID)
	}
	s.resources[r.ID] = r
	return nil
}

func (s *Store) ListResources(_ context.Context) ([]domain.Resource, error) {
	s.mu.RLock()
	out := make([]domain.Resource, 0, len(s.resources))
	for _, r := range s.resources {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SetResourceActive waits for the resource lock so a toggle never lands in
// the middle of a booking decision.
func (s *Store) SetResourceActive(ctx context.Context, id string, active bool) error {
	return s.WithResourceLock(ctx, id, func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		res, ok := s.resources[id]
		if !ok {
			return domain.Reject(domain.CodeNotFound, "resource %s", id)
		}
		res.Active = active
		s.resources[id] = res
		return nil
	})
}
