package service

import (
	"context"
	"errors"
	"time"

	"voting_api_gateway/internal/apperrors"
	"voting_api_gateway/internal/auth"
	"voting_api_gateway/internal/model"
	"voting_api_gateway/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidCredentials deliberately does not say whether the email or the
// password was wrong.
var ErrInvalidCredentials = errors.New("invalid email or password")

type AuthService interface {
	Login(ctx context.Context, email, password string) (string, time.Time, error)
	Verify(token string) (*auth.Claims, error)
	// EnsureAdmin seeds an admin account at startup if it does not exist yet.
	EnsureAdmin(ctx context.Context, email, password, name string) error
}

type authService struct {
	admins repository.AdminRepository
	tokens *auth.TokenManager
	logger *zap.Logger
}

func NewAuthService(admins repository.AdminRepository, tokens *auth.TokenManager, logger *zap.Logger) AuthService {
	return &authService{
		admins: admins,
		tokens: tokens,
		logger: logger,
	}
}

func (s *authService) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	if email == "" || password == "" {
		return "", time.Time{}, ErrInvalidCredentials
	}

	admin, err := s.admins.GetByEmail(ctx, email)
	if err != nil {
		s.logger.Error("failed to load admin", zap.Error(err), zap.String("email", email))
		return "", time.Time{}, apperrors.Internal("failed to load admin", err)
	}
	if admin == nil || !auth.CheckPassword(admin.PasswordHash, password) {
		s.logger.Warn("failed login attempt", zap.String("email", email))
		return "", time.Time{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(admin.ID, admin.Email)
	if err != nil {
		s.logger.Error("failed to issue token", zap.Error(err))
		return "", time.Time{}, apperrors.Internal("failed to issue token", err)
	}

	s.logger.Info("admin logged in", zap.String("email", email))
	return token, expiresAt, nil
}

func (s *authService) Verify(token string) (*auth.Claims, error) {
	return s.tokens.Verify(token)
}

func (s *authService) EnsureAdmin(ctx context.Context, email, password, name string) error {
	existing, err := s.admins.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	admin := &model.Admin{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		CreatedAt:    time.Now(),
	}

	if err := s.admins.Create(ctx, admin); err != nil {
		// Another instance may have seeded the same admin concurrently.
		if apperrors.IsKind(err, apperrors.KindConflict) {
			return nil
		}
		return err
	}

	s.logger.Info("admin account seeded", zap.String("email", email))
	return nil
}
