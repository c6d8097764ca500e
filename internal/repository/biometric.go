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

type BiometricRepository interface {
	// Create inserts under the schema's unique constraints on credential_id,
	// fingerprint_hash and session_id; a violation comes back as a Conflict.
	Create(ctx context.Context, biometric *model.Biometric) error
	GetByID(ctx context.Context, id string) (*model.Biometric, error)
	GetByCredentialID(ctx context.Context, credentialID string) (*model.Biometric, error)
	GetByFingerprintHash(ctx context.Context, hash string) (*model.Biometric, error)
	GetBySessionID(ctx context.Context, sessionID string) (*model.Biometric, error)
}

type biometricRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewBiometricRepository(db *pgxpool.Pool, logger *zap.Logger) BiometricRepository {
	return &biometricRepository{
		db:     db,
		logger: logger,
	}
}

func (r *biometricRepository) Create(ctx context.Context, biometric *model.Biometric) error {
	query := `
		INSERT INTO biometrics (id, credential_id, public_key, fingerprint_hash, session_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query,
		biometric.ID, biometric.CredentialID, biometric.PublicKey,
		biometric.FingerprintHash, biometric.SessionID, biometric.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			r.logger.Warn("duplicate biometric registration rejected by constraint",
				zap.String("credential_id", biometric.CredentialID))
			return apperrors.Conflict("biometric already registered")
		}
		r.logger.Error("failed to insert biometric", zap.Error(err), zap.String("id", biometric.ID))
		return fmt.Errorf("failed to insert biometric: %w", err)
	}

	return nil
}

func (r *biometricRepository) GetByID(ctx context.Context, id string) (*model.Biometric, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *biometricRepository) GetByCredentialID(ctx context.Context, credentialID string) (*model.Biometric, error) {
	return r.getOne(ctx, `WHERE credential_id = $1`, credentialID)
}

func (r *biometricRepository) GetByFingerprintHash(ctx context.Context, hash string) (*model.Biometric, error) {
	return r.getOne(ctx, `WHERE fingerprint_hash = $1`, hash)
}

func (r *biometricRepository) GetBySessionID(ctx context.Context, sessionID string) (*model.Biometric, error) {
	return r.getOne(ctx, `WHERE session_id = $1`, sessionID)
}

func (r *biometricRepository) getOne(ctx context.Context, where string, arg any) (*model.Biometric, error) {
	query := `
		SELECT id, credential_id, public_key, COALESCE(fingerprint_hash, ''), session_id, created_at
		FROM biometrics
	` + where

	var biometric model.Biometric
	err := r.db.QueryRow(ctx, query, arg).
		Scan(&biometric.ID, &biometric.CredentialID, &biometric.PublicKey,
			&biometric.FingerprintHash, &biometric.SessionID, &biometric.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("failed to get biometric", zap.Error(err))
		return nil, fmt.Errorf("failed to get biometric: %w", err)
	}

	return &biometric, nil
}
