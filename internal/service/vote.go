package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voting_api_gateway/internal/apperrors"
	"voting_api_gateway/internal/model"
	"voting_api_gateway/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type VoteService interface {
	// CastVote persists the ballot and completes the session atomically;
	// on any failure neither half is applied. The event publishes only
	// after commit.
	CastVote(ctx context.Context, sessionID, biometricID, choice string) (*model.Vote, error)
	GetResults(ctx context.Context) ([]model.ChoiceCount, error)
	GetTotalVotes(ctx context.Context) (int64, error)
}

type voteService struct {
	votes      repository.VoteRepository
	biometrics repository.BiometricRepository
	bus        EventPublisher
	logger     *zap.Logger
}

func NewVoteService(votes repository.VoteRepository, biometrics repository.BiometricRepository, bus EventPublisher, logger *zap.Logger) VoteService {
	return &voteService{
		votes:      votes,
		biometrics: biometrics,
		bus:        bus,
		logger:     logger,
	}
}

func (s *voteService) CastVote(ctx context.Context, sessionID, biometricID, choice string) (*model.Vote, error) {
	if choice == "" {
		return nil, fmt.Errorf("vote choice cannot be empty")
	}

	biometric, err := s.biometrics.GetByID(ctx, biometricID)
	if err != nil {
		return nil, apperrors.Internal("failed to resolve biometric", err)
	}
	if biometric == nil {
		return nil, apperrors.NotFound("biometric record not found")
	}

	// Advisory pre-check; the unique constraint on biometric_id inside the
	// transaction is what actually holds under concurrent casts.
	existing, err := s.votes.GetByBiometricID(ctx, biometricID)
	if err != nil {
		return nil, apperrors.Internal("failed to check existing vote", err)
	}
	if existing != nil {
		s.logger.Warn("duplicate vote attempt", zap.String("biometric_id", biometricID))
		return nil, apperrors.Conflict("vote already cast for this biometric")
	}

	vote := &model.Vote{
		ID:          uuid.New().String(),
		BiometricID: biometricID,
		VoteChoice:  choice,
		VotedAt:     time.Now(),
	}

	if err := s.votes.CastVote(ctx, vote, sessionID); err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			s.logger.Warn("vote rejected", zap.Error(err),
				zap.String("session_id", sessionID), zap.String("biometric_id", biometricID))
			return nil, err
		}
		s.logger.Error("failed to cast vote", zap.Error(err), zap.String("session_id", sessionID))
		return nil, apperrors.Internal("failed to cast vote, please try again", err)
	}

	s.bus.Publish(ctx, model.Event{SessionID: sessionID, Type: model.EventVoteCast})

	s.logger.Info("vote cast",
		zap.String("vote_id", vote.ID), zap.String("session_id", sessionID))
	return vote, nil
}

func (s *voteService) GetResults(ctx context.Context) ([]model.ChoiceCount, error) {
	results, err := s.votes.CountByChoice(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to get results", err)
	}
	return results, nil
}

func (s *voteService) GetTotalVotes(ctx context.Context) (int64, error) {
	total, err := s.votes.CountTotal(ctx)
	if err != nil {
		return 0, apperrors.Internal("failed to count votes", err)
	}
	return total, nil
}
