package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

func withTx(ctx context.Context, pool dbPool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// userRepo implements UserRepository.
type userRepo struct {
	pool dbPool
}

const userColumns = `u.id, u.oauth_subject, u.email, u.name, u.locale, u.role, u.created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.OAuthSubject, &u.Email, &u.Name, &u.Locale, &u.Role, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func collectUsers(rows pgx.Rows) ([]User, error) {
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (r *userRepo) UpsertOAuthUser(ctx context.Context, subject, email, name string) (*User, error) {
	defer observeDB(ctx, "users.upsert_oauth")()
	const q = `INSERT INTO users AS u (oauth_subject, email, name) VALUES ($1, $2, $3)
ON CONFLICT (oauth_subject) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name
RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, q, subject, email, name))
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*User, error) {
	defer observeDB(ctx, "users.get_by_id")()
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// scheduleRepo implements ScheduleRepository.
type scheduleRepo struct {
	pool dbPool
}

const scheduleColumns = `id, user_id, name, time_zone, is_default, updated_at`

func (r *scheduleRepo) GetByID(ctx context.Context, id int64) (*Schedule, error) {
	defer observeDB(ctx, "schedules.get_by_id")()
	var s Schedule
	err := r.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id).
		Scan(&s.ID, &s.UserID, &s.Name, &s.TimeZone, &s.IsDefault, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}

	rows, err := r.pool.Query(ctx, `SELECT day_of_week, start_minute, end_minute FROM schedule_intervals
WHERE schedule_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("load intervals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var day int16
		var iv Interval
		if err := rows.Scan(&day, &iv.StartMinute, &iv.EndMinute); err != nil {
			return nil, err
		}
		iv.Day = time.Weekday(day)
		s.Availability = append(s.Availability, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *scheduleRepo) ListByUser(ctx context.Context, userID int64) ([]Schedule, error) {
	defer observeDB(ctx, "schedules.list_by_user")()
	rows, err := r.pool.Query(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		var s Schedule
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.TimeZone, &s.IsDefault, &s.UpdatedAt); err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

func (r *scheduleRepo) Update(ctx context.Context, u ScheduleUpdate) error {
	defer observeDB(ctx, "schedules.update")()
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if u.IsDefault {
			if _, err := tx.Exec(ctx, `UPDATE schedules SET is_default = FALSE
WHERE user_id = $1 AND id <> $2 AND is_default`, u.UserID, u.ID); err != nil {
				return fmt.Errorf("clear default schedule: %w", err)
			}
		}

		tag, err := tx.Exec(ctx, `UPDATE schedules SET name = $3, time_zone = $4, is_default = $5, updated_at = NOW()
WHERE id = $1 AND user_id = $2`, u.ID, u.UserID, u.Name, u.TimeZone, u.IsDefault)
		if err != nil {
			return fmt.Errorf("update schedule: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM schedule_intervals WHERE schedule_id = $1`, u.ID); err != nil {
			return fmt.Errorf("clear intervals: %w", err)
		}
		for i, iv := range u.Availability {
			if _, err := tx.Exec(ctx, `INSERT INTO schedule_intervals (schedule_id, position, day_of_week, start_minute, end_minute)
VALUES ($1, $2, $3, $4, $5)`, u.ID, i, int16(iv.Day), iv.StartMinute, iv.EndMinute); err != nil {
				return fmt.Errorf("insert interval: %w", err)
			}
		}

		if !u.SyncEventTypes {
			return nil
		}
		ids := u.EventTypeIDs
		if ids == nil {
			ids = []int64{}
		}
		if _, err := tx.Exec(ctx, `UPDATE event_types SET schedule_id = NULL
WHERE schedule_id = $1 AND `+associableBy+` AND NOT (id = ANY($3))`, u.ID, u.UserID, ids); err != nil {
			return fmt.Errorf("detach event types: %w", err)
		}
		tag, err = tx.Exec(ctx, `UPDATE event_types SET schedule_id = $1
WHERE `+associableBy+` AND id = ANY($3)`, u.ID, u.UserID, ids)
		if err != nil {
			return fmt.Errorf("attach event types: %w", err)
		}
		if int(tag.RowsAffected()) != len(distinct(ids)) {
			return ErrNotAssociable
		}
		return nil
	})
}

// eventTypeRepo implements EventTypeRepository.
type eventTypeRepo struct {
	pool dbPool
}

const eventTypeSelect = `SELECT et.id, et.title, et.slug, et.user_id, COALESCE(NULLIF(o.name, ''), o.email, ''),
       et.team_id, COALESCE(t.name, ''), et.schedule_id, et.metadata
FROM event_types et
LEFT JOIN users o ON o.id = et.user_id
LEFT JOIN teams t ON t.id = et.team_id`

func collectEventTypes(rows pgx.Rows) ([]EventType, error) {
	defer rows.Close()
	var out []EventType
	for rows.Next() {
		var et EventType
		if err := rows.Scan(&et.ID, &et.Title, &et.Slug, &et.UserID, &et.OwnerName,
			&et.TeamID, &et.TeamName, &et.ScheduleID, &et.Metadata); err != nil {
			return nil, err
		}
		out = append(out, et)
	}
	return out, rows.Err()
}

// associableBy matches event types that user $2 owns or hosts. ListByUser
// offers exactly this set, so everything the selector shows can be saved.
const associableBy = `(user_id = $2 OR id IN (SELECT event_type_id FROM event_type_hosts WHERE user_id = $2))`

func distinct(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (r *eventTypeRepo) ListByUser(ctx context.Context, userID int64) ([]EventType, error) {
	defer observeDB(ctx, "event_types.list_by_user")()
	rows, err := r.pool.Query(ctx, eventTypeSelect+`
WHERE et.user_id = $1 OR et.id IN (SELECT event_type_id FROM event_type_hosts WHERE user_id = $1)
ORDER BY et.team_id NULLS FIRST, et.id`, userID)
	if err != nil {
		return nil, err
	}
	return collectEventTypes(rows)
}

func (r *eventTypeRepo) ListWithAppEnabled(ctx context.Context, slug string) ([]EventType, error) {
	defer observeDB(ctx, "event_types.list_with_app_enabled")()
	rows, err := r.pool.Query(ctx, eventTypeSelect+`
WHERE et.metadata -> 'apps' -> $1 -> 'enabled' = 'true'::jsonb
ORDER BY et.id`, slug)
	if err != nil {
		return nil, err
	}
	return collectEventTypes(rows)
}

func (r *eventTypeRepo) UpdateMetadata(ctx context.Context, id int64, metadata []byte) error {
	defer observeDB(ctx, "event_types.update_metadata")()
	tag, err := r.pool.Exec(ctx, `UPDATE event_types SET metadata = $2 WHERE id = $1`, id, metadata)
	if err != nil {
		return fmt.Errorf("update event type metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *eventTypeRepo) ListRoster(ctx context.Context, eventTypeID int64) ([]User, error) {
	defer observeDB(ctx, "event_types.list_roster")()
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users u
WHERE u.id IN (
    SELECT user_id FROM event_types WHERE id = $1 AND user_id IS NOT NULL
    UNION
    SELECT user_id FROM event_type_hosts WHERE event_type_id = $1
)
ORDER BY u.id`, eventTypeID)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}
