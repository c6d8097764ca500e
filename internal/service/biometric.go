package service

import (
	"context"
	"fmt"
	"time"

	"voting_api_gateway/internal/apperrors"
	"voting_api_gateway/internal/model"
	"voting_api_gateway/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BiometricService interface {
	// VerifyAndRegister records one verified human against a live session.
	// Two uniqueness checks close two different attacks: the credential id
	// catches the same enrolled authenticator returning, the fingerprint
	// hash catches the same finger enrolled on another device.
	VerifyAndRegister(ctx context.Context, sessionID, credentialID, publicKey, fingerprintHash string) (*model.Biometric, error)
	// FindByID returns nil, nil on absence; the caller decides what that means.
	FindByID(ctx context.Context, id string) (*model.Biometric, error)
}

type biometricService struct {
	repo     repository.BiometricRepository
	sessions SessionService
	bus      EventPublisher
	logger   *zap.Logger
}

func NewBiometricService(repo repository.BiometricRepository, sessions SessionService, bus EventPublisher, logger *zap.Logger) BiometricService {
	return &biometricService{
		repo:     repo,
		sessions: sessions,
		bus:      bus,
		logger:   logger,
	}
}

func (s *biometricService) VerifyAndRegister(ctx context.Context, sessionID, credentialID, publicKey, fingerprintHash string) (*model.Biometric, error) {
	if credentialID == "" || publicKey == "" || fingerprintHash == "" {
		return nil, fmt.Errorf("credential id, public key and fingerprint hash are required")
	}

	session, err := s.sessions.GetValidSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Advisory duplicate lookups for a fast, friendly error. The schema's
	// unique constraints remain the real guard under concurrency.
	existing, err := s.repo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Internal("failed to check session identity", err)
	}
	if existing != nil {
		s.logger.Warn("session already has an identity", zap.String("session_id", sessionID))
		return nil, apperrors.Conflict("session already has a registered identity")
	}

	existing, err = s.repo.GetByCredentialID(ctx, credentialID)
	if err != nil {
		return nil, apperrors.Internal("failed to check credential", err)
	}
	if existing != nil {
		s.logger.Warn("duplicate credential detected", zap.String("credential_id", credentialID))
		return nil, apperrors.Conflict("credential already registered")
	}

	existing, err = s.repo.GetByFingerprintHash(ctx, fingerprintHash)
	if err != nil {
		return nil, apperrors.Internal("failed to check fingerprint hash", err)
	}
	if existing != nil {
		s.logger.Warn("duplicate fingerprint hash detected", zap.String("session_id", sessionID))
		return nil, apperrors.Conflict("fingerprint already registered")
	}

	biometric := &model.Biometric{
		ID:              uuid.New().String(),
		CredentialID:    credentialID,
		PublicKey:       publicKey,
		FingerprintHash: fingerprintHash,
		SessionID:       session.ID,
		CreatedAt:       time.Now(),
	}

	if err := s.repo.Create(ctx, biometric); err != nil {
		if apperrors.IsKind(err, apperrors.KindConflict) {
			// Lost a race: another request inserted the same credential or
			// hash between our lookups and this insert.
			s.logger.Warn("concurrent duplicate registration",
				zap.String("credential_id", credentialID))
			return nil, err
		}
		s.logger.Error("failed to save biometric", zap.Error(err))
		return nil, apperrors.Internal("failed to register biometric", err)
	}

	s.bus.Publish(ctx, model.Event{
		SessionID:   session.ID,
		Type:        model.EventBiometricVerified,
		BiometricID: biometric.ID,
	})

	// Idempotent: also how a direct-flow session, which skips the phone hop,
	// reaches scanned.
	if err := s.sessions.MarkScanned(ctx, sessionID); err != nil {
		return nil, err
	}

	s.logger.Info("biometric registered",
		zap.String("biometric_id", biometric.ID), zap.String("session_id", sessionID))
	return biometric, nil
}

func (s *biometricService) FindByID(ctx context.Context, id string) (*model.Biometric, error) {
	biometric, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Internal("failed to get biometric", err)
	}
	return biometric, nil
}
