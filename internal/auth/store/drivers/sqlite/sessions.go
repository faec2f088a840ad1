package sqlite

import (
	"context"
	"time"

	"github.com/sitepass/sitepass/internal/auth/domain"
)

type sessionsRepo struct {
	db dbtx
}

const sessionColumns = `id, user_id, session_id, ip_address, user_agent, last_accessed, expires_at, created_at`

func scanSession(row interface{ Scan(...any) error }) (domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.SessionID,
		&s.IPAddress,
		&s.UserAgent,
		&s.LastAccessed,
		&s.ExpiresAt,
		&s.CreatedAt,
	)
	return s, err
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.SessionID, s.IPAddress,
		s.UserAgent, s.LastAccessed, s.ExpiresAt, s.CreatedAt,
	)
	return mapConstraint(err)
}

func (r *sessionsRepo) GetSessionByID(ctx context.Context, sessionID string) (domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	s, err := scanSession(row)
	return s, mapNotFound(err)
}

func (r *sessionsRepo) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET last_accessed = ? WHERE session_id = ?`,
		at, sessionID)
	return err
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE expires_at < ?`, now)
	return err
}
