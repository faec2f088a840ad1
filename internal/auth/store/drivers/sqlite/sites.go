package sqlite

import (
	"context"

	"github.com/sitepass/sitepass/internal/auth/domain"
)

type sitesRepo struct {
	db dbtx
}

const siteColumns = `id, site_name, site_url, api_key_hash, access_level_required, is_active, created_at, updated_at`

func scanSite(row interface{ Scan(...any) error }) (domain.Site, error) {
	var s domain.Site
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.URL,
		&s.APIKeyHash,
		&s.RequiredLevel,
		&s.IsActive,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}

func (r *sitesRepo) CreateSite(ctx context.Context, s domain.Site) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sites (`+siteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.URL, s.APIKeyHash,
		s.RequiredLevel, s.IsActive, s.CreatedAt, s.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *sitesRepo) GetSiteByID(ctx context.Context, id string) (domain.Site, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+siteColumns+` FROM sites WHERE id = ?`, id)
	s, err := scanSite(row)
	return s, mapNotFound(err)
}

func (r *sitesRepo) GetSiteByName(ctx context.Context, name string) (domain.Site, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+siteColumns+` FROM sites WHERE site_name = ?`, name)
	s, err := scanSite(row)
	return s, mapNotFound(err)
}

func (r *sitesRepo) ListActiveSites(ctx context.Context) ([]domain.Site, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+siteColumns+` FROM sites
		WHERE is_active = 1
		ORDER BY site_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []domain.Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, s)
	}
	return sites, rows.Err()
}

func (r *sitesRepo) UpdateSiteRequiredLevel(ctx context.Context, siteID string, level domain.AccessLevel) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sites SET access_level_required = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		level, siteID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *sitesRepo) SetSiteActive(ctx context.Context, siteID string, active bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sites SET is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		active, siteID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}
