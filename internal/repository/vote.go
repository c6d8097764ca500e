package repository

import (
	"context"
	"errors"
	"fmt"

	"voting_api_gateway/internal/apperrors"
	"voting_api_gateway/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type VoteRepository interface {
	// GetByBiometricID returns nil, nil when no vote exists for the identity.
	GetByBiometricID(ctx context.Context, biometricID string) (*model.Vote, error)
	// CastVote inserts the vote and completes the session in one
	// transaction. Either both land or neither does. A duplicate vote for
	// the same biometric and a session that is no longer castable both come
	// back as kinded errors.
	CastVote(ctx context.Context, vote *model.Vote, sessionID string) error
	CountByChoice(ctx context.Context) ([]model.ChoiceCount, error)
	CountTotal(ctx context.Context) (int64, error)
}

type voteRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewVoteRepository(db *pgxpool.Pool, logger *zap.Logger) VoteRepository {
	return &voteRepository{
		db:     db,
		logger: logger,
	}
}

func (r *voteRepository) GetByBiometricID(ctx context.Context, biometricID string) (*model.Vote, error) {
	query := `
		SELECT id, biometric_id, vote_choice, voted_at
		FROM votes
		WHERE biometric_id = $1
	`

	var vote model.Vote
	err := r.db.QueryRow(ctx, query, biometricID).
		Scan(&vote.ID, &vote.BiometricID, &vote.VoteChoice, &vote.VotedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("failed to get vote", zap.Error(err), zap.String("biometric_id", biometricID))
		return nil, fmt.Errorf("failed to get vote: %w", err)
	}

	return &vote, nil
}

func (r *voteRepository) CastVote(ctx context.Context, vote *model.Vote, sessionID string) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		// Lock the session row so a concurrent cast or sweep on the same
		// session serializes behind this transaction.
		var status model.SessionStatus
		err := tx.QueryRow(ctx,
			`SELECT status FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).
			Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("session not found")
		}
		if err != nil {
			return fmt.Errorf("failed to lock session: %w", err)
		}

		switch status {
		case model.SessionCompleted:
			return apperrors.Conflict("session already completed")
		case model.SessionExpired:
			return apperrors.Gone("session has expired")
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO votes (id, biometric_id, vote_choice, voted_at) VALUES ($1, $2, $3, $4)`,
			vote.ID, vote.BiometricID, vote.VoteChoice, vote.VotedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return apperrors.Conflict("vote already cast for this biometric")
			}
			return fmt.Errorf("failed to insert vote: %w", err)
		}

		return markSessionCompleted(ctx, tx, sessionID)
	})
	if err != nil {
		if apperrors.MessageOf(err) == "" {
			r.logger.Error("vote transaction rolled back", zap.Error(err),
				zap.String("session_id", sessionID))
		}
		return err
	}

	return nil
}

func (r *voteRepository) CountByChoice(ctx context.Context) ([]model.ChoiceCount, error) {
	query := `
		SELECT vote_choice, COUNT(*)
		FROM votes
		GROUP BY vote_choice
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("failed to count votes by choice", zap.Error(err))
		return nil, fmt.Errorf("failed to count votes by choice: %w", err)
	}
	defer rows.Close()

	var results []model.ChoiceCount
	for rows.Next() {
		var cc model.ChoiceCount
		if err := rows.Scan(&cc.Choice, &cc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan choice count: %w", err)
		}
		results = append(results, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read choice counts: %w", err)
	}

	return results, nil
}

func (r *voteRepository) CountTotal(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM votes`).Scan(&total)
	if err != nil {
		r.logger.Error("failed to count votes", zap.Error(err))
		return 0, fmt.Errorf("failed to count votes: %w", err)
	}

	return total, nil
}
