package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voting_api_gateway/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	// GetByID returns nil, nil when the session does not exist.
	GetByID(ctx context.Context, id string) (*model.Session, error)
	// MarkScanned flips a pending session to scanned. It returns false
	// without touching the row when the session is in any other state, so a
	// concurrently committed terminal state is never overwritten.
	MarkScanned(ctx context.Context, id string) (bool, error)
	// MarkExpired flips a pending or scanned session to expired, with the
	// same lost-race contract as MarkScanned.
	MarkExpired(ctx context.Context, id string) (bool, error)
	// ExpireBefore flips every pending or scanned session whose deadline has
	// passed to expired and returns the affected ids.
	ExpireBefore(ctx context.Context, deadline time.Time) ([]string, error)
}

type sessionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewSessionRepository(db *pgxpool.Pool, logger *zap.Logger) SessionRepository {
	return &sessionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *sessionRepository) Create(ctx context.Context, session *model.Session) error {
	query := `
		INSERT INTO sessions (id, qr_token, status, flow_type, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query,
		session.ID, session.QRToken, session.Status, session.FlowType,
		session.ExpiresAt, session.CreatedAt)
	if err != nil {
		r.logger.Error("failed to insert session", zap.Error(err), zap.String("id", session.ID))
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

func (r *sessionRepository) GetByID(ctx context.Context, id string) (*model.Session, error) {
	query := `
		SELECT id, qr_token, status, flow_type, expires_at, created_at
		FROM sessions
		WHERE id = $1
	`

	var session model.Session
	err := r.db.QueryRow(ctx, query, id).
		Scan(&session.ID, &session.QRToken, &session.Status, &session.FlowType,
			&session.ExpiresAt, &session.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("failed to get session", zap.Error(err), zap.String("id", id))
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &session, nil
}

func (r *sessionRepository) MarkScanned(ctx context.Context, id string) (bool, error) {
	query := `UPDATE sessions SET status = 'scanned' WHERE id = $1 AND status = 'pending'`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("failed to mark session scanned", zap.Error(err), zap.String("id", id))
		return false, fmt.Errorf("failed to mark session scanned: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *sessionRepository) MarkExpired(ctx context.Context, id string) (bool, error) {
	query := `UPDATE sessions SET status = 'expired' WHERE id = $1 AND status IN ('pending', 'scanned')`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("failed to mark session expired", zap.Error(err), zap.String("id", id))
		return false, fmt.Errorf("failed to mark session expired: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *sessionRepository) ExpireBefore(ctx context.Context, deadline time.Time) ([]string, error) {
	query := `
		UPDATE sessions
		SET status = 'expired'
		WHERE status IN ('pending', 'scanned') AND expires_at < $1
		RETURNING id
	`

	rows, err := r.db.Query(ctx, query, deadline)
	if err != nil {
		r.logger.Error("failed to expire sessions", zap.Error(err))
		return nil, fmt.Errorf("failed to expire sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan expired session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read expired session ids: %w", err)
	}

	return ids, nil
}

// markSessionCompleted sets the status unconditionally. It runs only inside
// the vote-cast transaction, after the ledger has checked the session is
// still castable under the row lock.
func markSessionCompleted(ctx context.Context, tx pgx.Tx, sessionID string) error {
	_, err := tx.Exec(ctx, `UPDATE sessions SET status = 'completed' WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	return nil
}
