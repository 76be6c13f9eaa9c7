package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// appRepo implements AppRepository.
type appRepo struct {
	pool dbPool
}

const appColumns = `slug, categories, enabled, keys, updated_at`

func scanApp(row pgx.Row) (*App, error) {
	var a App
	if err := row.Scan(&a.Slug, &a.Categories, &a.Enabled, &a.Keys, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// Seed makes sure a row exists for a bundled app. Existing enable state and
// keys are left untouched.
func (r *appRepo) Seed(ctx context.Context, slug string, categories []string) error {
	defer observeDB(ctx, "apps.seed")()
	_, err := r.pool.Exec(ctx, `INSERT INTO apps (slug, categories) VALUES ($1, $2)
ON CONFLICT (slug) DO UPDATE SET categories = EXCLUDED.categories`, slug, categories)
	if err != nil {
		return fmt.Errorf("seed app %s: %w", slug, err)
	}
	return nil
}

func (r *appRepo) GetBySlug(ctx context.Context, slug string) (*App, error) {
	defer observeDB(ctx, "apps.get_by_slug")()
	a, err := scanApp(r.pool.QueryRow(ctx, `SELECT `+appColumns+` FROM apps WHERE slug = $1`, slug))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (r *appRepo) ListByCategory(ctx context.Context, category string) ([]App, error) {
	defer observeDB(ctx, "apps.list_by_category")()
	rows, err := r.pool.Query(ctx, `SELECT `+appColumns+` FROM apps WHERE $1 = ANY(categories) ORDER BY slug`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []App
	for rows.Next() {
		a, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *a)
	}
	return apps, rows.Err()
}

func (r *appRepo) SetEnabled(ctx context.Context, slug string, enabled bool) (*App, error) {
	defer observeDB(ctx, "apps.set_enabled")()
	a, err := scanApp(r.pool.QueryRow(ctx, `UPDATE apps SET enabled = $2, updated_at = NOW()
WHERE slug = $1 RETURNING `+appColumns, slug, enabled))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (r *appRepo) UpdateKeys(ctx context.Context, slug string, sealedKeys string) error {
	defer observeDB(ctx, "apps.update_keys")()
	tag, err := r.pool.Exec(ctx, `UPDATE apps SET keys = $2, updated_at = NOW() WHERE slug = $1`, slug, sealedKeys)
	if err != nil {
		return fmt.Errorf("update app keys: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// credentialRepo implements CredentialRepository.
type credentialRepo struct {
	pool dbPool
}

func (r *credentialRepo) ListUsersByApp(ctx context.Context, slug string) ([]User, error) {
	defer observeDB(ctx, "credentials.list_users_by_app")()
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT `+userColumns+` FROM credentials c
JOIN users u ON u.id = c.user_id
WHERE c.app_slug = $1
ORDER BY u.id`, slug)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}
