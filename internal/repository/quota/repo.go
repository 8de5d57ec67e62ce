package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wb-go/wbf/dbpg"

	"github.com/aliskhannn/imgbatch/internal/model"
	"github.com/aliskhannn/imgbatch/internal/quota"
)

var ErrActorNotFound = errors.New("actor not found")

// Plan is the allowance given to an account on first use.
type Plan struct {
	DailyLimit        int
	StorageQuotaBytes int64
}

// Repository keeps registered actors' counters in PostgreSQL. Every
// check-and-increment is a single conditional UPDATE, so concurrent requests
// for the same actor never overshoot the limit.
type Repository struct {
	db   *dbpg.DB
	plan Plan
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db *dbpg.DB, plan Plan) *Repository {
	return &Repository{db: db, plan: plan}
}

// ensure creates the actor's row with the default plan if it does not exist yet.
func (r *Repository) ensure(ctx context.Context, actorID string) error {
	query := `
		INSERT INTO actor_quotas (actor_id, daily_limit, used_today, reset_date, storage_quota_bytes, storage_used_bytes)
		VALUES ($1, $2, 0, '', $3, 0)
		ON CONFLICT (actor_id) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, actorID, r.plan.DailyLimit, r.plan.StorageQuotaBytes); err != nil {
		return fmt.Errorf("ensure: failed to create actor quota: %w", err)
	}

	return nil
}

// Admit atomically resets the counter on a new day and adds n if the result
// stays within the daily limit. It reports whether the request was admitted
// together with the counter as it stands afterwards.
func (r *Repository) Admit(ctx context.Context, actorID string, n int, today string) (quota.Quota, bool, error) {
	if err := r.ensure(ctx, actorID); err != nil {
		return quota.Quota{}, false, err
	}

	query := `
		UPDATE actor_quotas
		SET used_today = (CASE WHEN reset_date = $3 THEN used_today ELSE 0 END) + $2,
		    reset_date = $3,
		    updated_at = now()
		WHERE actor_id = $1
		  AND (CASE WHEN reset_date = $3 THEN used_today ELSE 0 END) + $2 <= daily_limit
		RETURNING daily_limit, used_today, reset_date, storage_quota_bytes, storage_used_bytes
	`

	q, err := scanQuota(r.db.Master.QueryRowContext(ctx, query, actorID, n, today))
	if err == nil {
		return q, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return quota.Quota{}, false, fmt.Errorf("admit: failed to update quota: %w", err)
	}

	q, err = r.Get(ctx, actorID, today)
	if err != nil {
		return quota.Quota{}, false, err
	}

	return q, false, nil
}

// Get returns the actor's quota as seen on today, without modifying it.
func (r *Repository) Get(ctx context.Context, actorID string, today string) (quota.Quota, error) {
	if err := r.ensure(ctx, actorID); err != nil {
		return quota.Quota{}, err
	}

	query := `
		SELECT daily_limit,
		       CASE WHEN reset_date = $2::text THEN used_today ELSE 0 END,
		       $2::text,
		       storage_quota_bytes, storage_used_bytes
		FROM actor_quotas
		WHERE actor_id = $1
	`

	q, err := scanQuota(r.db.Master.QueryRowContext(ctx, query, actorID, today))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return quota.Quota{}, ErrActorNotFound
		}

		return quota.Quota{}, fmt.Errorf("get: failed to get quota: %w", err)
	}

	return q, nil
}

// ReserveStorage claims size bytes of the actor's storage allowance.
// It returns model.ErrStorageFull when the claim does not fit.
func (r *Repository) ReserveStorage(ctx context.Context, actorID string, size int64) (int64, error) {
	if err := r.ensure(ctx, actorID); err != nil {
		return 0, err
	}

	query := `
		UPDATE actor_quotas
		SET storage_used_bytes = storage_used_bytes + $2,
		    updated_at = now()
		WHERE actor_id = $1
		  AND storage_used_bytes + $2 <= storage_quota_bytes
		RETURNING storage_used_bytes
	`

	var used int64
	err := r.db.Master.QueryRowContext(ctx, query, actorID, size).Scan(&used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, model.ErrStorageFull
		}

		return 0, fmt.Errorf("reserve: failed to reserve storage: %w", err)
	}

	return used, nil
}

// ReleaseStorage returns size bytes to the actor's storage allowance.
func (r *Repository) ReleaseStorage(ctx context.Context, actorID string, size int64) error {
	query := `
		UPDATE actor_quotas
		SET storage_used_bytes = GREATEST(storage_used_bytes - $2, 0),
		    updated_at = now()
		WHERE actor_id = $1
	`

	res, err := r.db.ExecContext(ctx, query, actorID, size)
	if err != nil {
		return fmt.Errorf("release: failed to release storage: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrActorNotFound
	}

	return nil
}

func scanQuota(row *sql.Row) (quota.Quota, error) {
	q := quota.Quota{Kind: model.ActorRegistered}
	err := row.Scan(&q.DailyLimit, &q.UsedToday, &q.ResetDate, &q.StorageQuotaBytes, &q.StorageUsedBytes)

	return q, err
}
