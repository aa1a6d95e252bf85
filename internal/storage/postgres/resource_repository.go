package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/domain"
)

type ResourceRepository struct {
	pool *pgxpool.Pool
}

func NewResourceRepository(pool *pgxpool.Pool) *ResourceRepository {
	return &ResourceRepository{pool: pool}
}

func (r *ResourceRepository) CreateResource(ctx context.Context, res domain.Resource) error {
	const stmt = `
INSERT INTO resources (id, name, kind, capacity, overbooking, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, stmt, res.ID, res.Name, res.Kind, res.Capacity, res.Overbooking, res.Active, res.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Reject(domain.CodeInvalidArgument, "invalid resource id %q", res.ID)
		}
		if isUniqueViolation(err) {
			return domain.Reject(domain.CodeConflict, "resource %s already exists", res.ID)
		}
		if isCheckViolation(err) {
			return domain.Reject(domain.CodeInvalidArgument, "resource violates a catalog constraint")
		}
		return classify("create resource", err)
	}
	return nil
}

func (r *ResourceRepository) ListResources(ctx context.Context) ([]domain.Resource, error) {
	const query = `
SELECT id, name, kind, capacity, overbooking, active, created_at
FROM resources
ORDER BY name ASC, id ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, classify("list resources", err)
	}
	defer rows.Close()

	var resources []domain.Resource
	for rows.Next() {
		var res domain.Resource
		if err := rows.Scan(&res.ID, &res.Name, &res.Kind, &res.Capacity, &res.Overbooking, &res.Active, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		resources = append(resources, res)
	}
	if rows.Err() != nil {
		return nil, classify("iterate resources", rows.Err())
	}
	return resources, nil
}

// SetResourceActive updates the row, so it queues behind any booking that
// holds the resource lock.
func (r *ResourceRepository) SetResourceActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE resources SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Reject(domain.CodeNotFound, "resource %s", id)
		}
		return classify("set resource active", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Reject(domain.CodeNotFound, "resource %s", id)
	}
	return nil
}
