package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/domain"
)

// ReservationRepository is the Postgres reservation ledger. The per-resource
// lock is the resource row itself, held with SELECT ... FOR UPDATE for the
// lifetime of the transaction.
type ReservationRepository struct {
	pool     *pgxpool.Pool
	lockWait time.Duration
}

type ReservationRepositoryOption func(*ReservationRepository)

// WithLockWait caps how long WithResourceLock waits for the row lock. A
// tighter context deadline wins.
func WithLockWait(d time.Duration) ReservationRepositoryOption {
	return func(r *ReservationRepository) {
		r.lockWait = d
	}
}

func NewReservationRepository(pool *pgxpool.Pool, opts ...ReservationRepositoryOption) *ReservationRepository {
	r := &ReservationRepository{pool: pool}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type heldKey struct{}

func heldResource(ctx context.Context) string {
	id, _ := ctx.Value(heldKey{}).(string)
	return id
}

func (r *ReservationRepository) WithResourceLock(ctx context.Context, resourceID string, fn func(ctx context.Context) error) error {
	if held := heldResource(ctx); held != "" {
		if held == resourceID {
			return fn(ctx)
		}
		return domain.Reject(domain.CodeConflict, "already holding the lock of resource %s", held)
	}

	return withTx(ctx, r.pool, func(txCtx context.Context) error {
		wait, fromDeadline := r.lockTimeout(ctx)
		if wait > 0 {
			ms := fmt.Sprintf("%dms", wait.Milliseconds())
			if _, err := r.exec(txCtx, `SELECT set_config('lock_timeout', $1, true)`, ms); err != nil {
				return classify("set lock_timeout", err)
			}
		}

		var id string
		err := r.queryRow(txCtx, `SELECT id FROM resources WHERE id = $1 FOR UPDATE`, resourceID).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
				return domain.Reject(domain.CodeNotFound, "resource %s", resourceID)
			}
			if isLockNotAvailable(err) && fromDeadline {
				return domain.Reject(domain.CodeTimeout, "waiting for lock on resource %s", resourceID)
			}
			return classify("lock resource", err)
		}
		return fn(context.WithValue(txCtx, heldKey{}, resourceID))
	})
}

// lockTimeout returns the lock wait to apply and whether it came from the
// context deadline rather than the configured cap.
func (r *ReservationRepository) lockTimeout(ctx context.Context) (time.Duration, bool) {
	dl, ok := ctx.Deadline()
	if !ok {
		return r.lockWait, false
	}
	remaining := time.Until(dl)
	if r.lockWait > 0 && r.lockWait < remaining {
		return r.lockWait, false
	}
	if remaining < time.Millisecond {
		remaining = time.Millisecond
	}
	return remaining, true
}

func (r *ReservationRepository) GetResource(ctx context.Context, id string) (domain.Resource, error) {
	const query = `
SELECT id, name, kind, capacity, overbooking, active, created_at
FROM resources
WHERE id = $1`
	var res domain.Resource
	err := r.queryRow(ctx, query, id).
		Scan(&res.ID, &res.Name, &res.Kind, &res.Capacity, &res.Overbooking, &res.Active, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return domain.Resource{}, domain.Reject(domain.CodeNotFound, "resource %s", id)
		}
		return domain.Resource{}, classify("get resource", err)
	}
	return res, nil
}

const reservationColumns = `id, resource_id, owner, starts_at, ends_at, quantity, status, created_at, updated_at, cancelled_at`

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var res domain.Reservation
	err := row.Scan(
		&res.ID, &res.ResourceID, &res.Owner,
		&res.Interval.Start, &res.Interval.End,
		&res.Quantity, &res.Status,
		&res.CreatedAt, &res.UpdatedAt, &res.CancelledAt,
	)
	return res, err
}

func (r *ReservationRepository) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	res, err := scanReservation(r.queryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return domain.Reservation{}, domain.Reject(domain.CodeNotFound, "reservation %s", id)
		}
		return domain.Reservation{}, classify("get reservation", err)
	}
	return res, nil
}

func (r *ReservationRepository) Overlaps(ctx context.Context, resourceID string, iv domain.Interval, excludeID string) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
FROM reservations
WHERE resource_id = $1
  AND status = 'live'
  AND starts_at < $3
  AND ends_at > $2
  AND id::text <> $4
ORDER BY starts_at ASC, id ASC`
	out, err := r.list(ctx, "overlaps", query, resourceID, iv.Start, iv.End, excludeID)
	if err != nil && isInvalidUUID(err) {
		return nil, domain.Reject(domain.CodeNotFound, "resource %s", resourceID)
	}
	return out, err
}

func (r *ReservationRepository) ListByOwner(ctx context.Context, owner string, window *domain.Interval) ([]domain.Reservation, error) {
	if window == nil {
		query := `SELECT ` + reservationColumns + `
FROM reservations
WHERE owner = $1
ORDER BY starts_at DESC, id ASC`
		return r.list(ctx, "list by owner", query, owner)
	}
	query := `SELECT ` + reservationColumns + `
FROM reservations
WHERE owner = $1
  AND starts_at < $3
  AND ends_at > $2
ORDER BY starts_at DESC, id ASC`
	return r.list(ctx, "list by owner", query, owner, window.Start, window.End)
}

func (r *ReservationRepository) list(ctx context.Context, op, query string, args ...any) ([]domain.Reservation, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, err
		}
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		if isInvalidUUID(err) {
			return nil, err
		}
		return nil, classify(op, err)
	}
	return out, nil
}

func (r *ReservationRepository) requireLock(ctx context.Context, resourceID string) error {
	if txFromContext(ctx) == nil || heldResource(ctx) != resourceID {
		return domain.Reject(domain.CodeConflict, "write to resource %s without holding its lock", resourceID)
	}
	return nil
}

func (r *ReservationRepository) Insert(ctx context.Context, res domain.Reservation) error {
	if err := r.requireLock(ctx, res.ResourceID); err != nil {
		return err
	}
	const stmt = `
INSERT INTO reservations (id, resource_id, owner, starts_at, ends_at, quantity, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.exec(ctx, stmt,
		res.ID, res.ResourceID, res.Owner,
		res.Interval.Start, res.Interval.End,
		res.Quantity, res.Status, res.CreatedAt, res.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Reject(domain.CodeConflict, "reservation %s already exists", res.ID)
		}
		if isForeignKeyViolation(err) {
			return domain.Reject(domain.CodeNotFound, "resource %s", res.ResourceID)
		}
		if isCheckViolation(err) {
			return domain.Reject(domain.CodeInvalidArgument, "reservation %s violates a ledger constraint", res.ID)
		}
		return classify("insert reservation", err)
	}
	return nil
}

func (r *ReservationRepository) Update(ctx context.Context, res domain.Reservation) error {
	if err := r.requireLock(ctx, res.ResourceID); err != nil {
		return err
	}
	const stmt = `
UPDATE reservations
SET starts_at = $3, ends_at = $4, quantity = $5, updated_at = $6
WHERE id = $1 AND resource_id = $2 AND status = 'live'`
	tag, err := r.exec(ctx, stmt, res.ID, res.ResourceID, res.Interval.Start, res.Interval.End, res.Quantity, res.UpdatedAt)
	if err != nil {
		if isCheckViolation(err) {
			return domain.Reject(domain.CodeInvalidArgument, "reservation %s violates a ledger constraint", res.ID)
		}
		return classify("update reservation", err)
	}
	return r.explainNoRows(ctx, tag, res.ID)
}

func (r *ReservationRepository) Cancel(ctx context.Context, id string, at time.Time) error {
	const stmt = `
UPDATE reservations
SET status = 'cancelled', cancelled_at = $2, updated_at = $2
WHERE id = $1 AND resource_id = $3 AND status = 'live'`
	held := heldResource(ctx)
	if txFromContext(ctx) == nil || held == "" {
		return domain.Reject(domain.CodeConflict, "cancel of %s without holding a resource lock", id)
	}
	tag, err := r.exec(ctx, stmt, id, at, held)
	if err != nil {
		return classify("cancel reservation", err)
	}
	return r.explainNoRows(ctx, tag, id)
}

// explainNoRows turns a zero-row update into NOT_FOUND, CONFLICT or
// ALREADY_CANCELLED.
func (r *ReservationRepository) explainNoRows(ctx context.Context, tag pgconn.CommandTag, id string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	current, err := r.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	if !current.Live() {
		return domain.Reject(domain.CodeAlreadyCancelled, "reservation %s", id)
	}
	return domain.Reject(domain.CodeConflict, "reservation %s belongs to resource %s", id, current.ResourceID)
}

func (r *ReservationRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *ReservationRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *ReservationRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
