package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/sitepass/sitepass/internal/auth/domain"
)

type signingSecretsRepo struct {
	db dbtx
}

const signingSecretColumns = `id, key_id, secret_type, secret_sealed, secret_hash, is_active, created_at, deactivated_at, expires_at`

func scanSigningSecret(row interface{ Scan(...any) error }) (domain.SigningSecret, error) {
	var (
		s           domain.SigningSecret
		deactivated sql.NullTime
		expires     sql.NullTime
	)
	err := row.Scan(
		&s.ID,
		&s.KeyID,
		&s.Type,
		&s.SecretSealed,
		&s.SecretHash,
		&s.IsActive,
		&s.CreatedAt,
		&deactivated,
		&expires,
	)
	s.DeactivatedAt = mapNullTimePtr(deactivated)
	s.ExpiresAt = mapNullTimePtr(expires)
	return s, err
}

func (r *signingSecretsRepo) CreateSigningSecret(ctx context.Context, s domain.SigningSecret) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO signing_secrets (`+signingSecretColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.KeyID, s.Type, s.SecretSealed, s.SecretHash,
		s.IsActive, s.CreatedAt,
		mapOptionalTime(s.DeactivatedAt), mapOptionalTime(s.ExpiresAt),
	)
	return mapConstraint(err)
}

func (r *signingSecretsRepo) GetActiveSigningSecret(ctx context.Context, typ domain.SecretType) (domain.SigningSecret, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+signingSecretColumns+` FROM signing_secrets
		WHERE secret_type = ? AND is_active = 1`, typ)
	s, err := scanSigningSecret(row)
	return s, mapNotFound(err)
}

func (r *signingSecretsRepo) GetSigningSecretByKeyID(ctx context.Context, keyID string) (domain.SigningSecret, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+signingSecretColumns+` FROM signing_secrets
		WHERE key_id = ?`, keyID)
	s, err := scanSigningSecret(row)
	return s, mapNotFound(err)
}

func (r *signingSecretsRepo) DeactivateActiveSigningSecrets(ctx context.Context, typ domain.SecretType, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE signing_secrets SET is_active = 0, deactivated_at = ?
		WHERE secret_type = ? AND is_active = 1`,
		at, typ)
	return err
}

func (r *signingSecretsRepo) ListActiveSigningSecrets(ctx context.Context) ([]domain.SigningSecret, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+signingSecretColumns+` FROM signing_secrets
		WHERE is_active = 1
		ORDER BY secret_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var secrets []domain.SigningSecret
	for rows.Next() {
		s, err := scanSigningSecret(rows)
		if err != nil {
			return nil, err
		}
		secrets = append(secrets, s)
	}
	return secrets, rows.Err()
}

func (r *signingSecretsRepo) DeleteExpiredSigningSecrets(ctx context.Context, deactivatedBefore time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM signing_secrets
		WHERE is_active = 0 AND deactivated_at IS NOT NULL AND deactivated_at < ?`,
		deactivatedBefore)
	return err
}
