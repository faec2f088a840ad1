package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/sitepass/sitepass/internal/auth/domain"
)

type refreshTokensRepo struct {
	db dbtx
}

const refreshTokenColumns = `id, user_id, session_id, token_hash, expires_at, revoked_at, created_at`

func scanRefreshToken(row interface{ Scan(...any) error }) (domain.RefreshTokenRecord, error) {
	var (
		t       domain.RefreshTokenRecord
		revoked sql.NullTime
	)
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.SessionID,
		&t.TokenHash,
		&t.ExpiresAt,
		&revoked,
		&t.CreatedAt,
	)
	t.RevokedAt = mapNullTimePtr(revoked)
	return t, err
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshTokenRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (`+refreshTokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.SessionID, t.TokenHash, t.ExpiresAt,
		mapOptionalTime(t.RevokedAt), t.CreatedAt,
	)
	return mapConstraint(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshTokenRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = ?`, hash)
	t, err := scanRefreshToken(row)
	return t, mapNotFound(err)
}

// RevokeRefreshToken is deliberately a no-op for unknown or already-revoked
// hashes so callers can expose a uniform response regardless of token state.
func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, hash string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = ?
		WHERE token_hash = ? AND revoked_at IS NULL`,
		at, hash)
	return err
}

// ConsumeRefreshToken is the single-use variant: it fails with ErrNotFound
// unless it revoked exactly one live row, so two transactions racing on the
// same token cannot both mint a successor.
func (r *refreshTokensRepo) ConsumeRefreshToken(ctx context.Context, hash string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = ?
		WHERE token_hash = ? AND revoked_at IS NULL`,
		at, hash)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *refreshTokensRepo) RevokeAllUserRefreshTokens(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = ?
		WHERE user_id = ? AND revoked_at IS NULL`,
		at, userID)
	return err
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens WHERE expires_at < ?`, now)
	return err
}
