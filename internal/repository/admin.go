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

type AdminRepository interface {
	Create(ctx context.Context, admin *model.Admin) error
	// GetByEmail returns nil, nil when no admin has that email.
	GetByEmail(ctx context.Context, email string) (*model.Admin, error)
}

type adminRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAdminRepository(db *pgxpool.Pool, logger *zap.Logger) AdminRepository {
	return &adminRepository{
		db:     db,
		logger: logger,
	}
}

func (r *adminRepository) Create(ctx context.Context, admin *model.Admin) error {
	query := `
		INSERT INTO admins (id, email, password_hash, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Exec(ctx, query,
		admin.ID, admin.Email, admin.PasswordHash, admin.Name, admin.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("admin already exists")
		}
		r.logger.Error("failed to insert admin", zap.Error(err), zap.String("email", admin.Email))
		return fmt.Errorf("failed to insert admin: %w", err)
	}

	return nil
}

func (r *adminRepository) GetByEmail(ctx context.Context, email string) (*model.Admin, error) {
	query := `
		SELECT id, email, password_hash, name, created_at
		FROM admins
		WHERE email = $1
	`

	var admin model.Admin
	err := r.db.QueryRow(ctx, query, email).
		Scan(&admin.ID, &admin.Email, &admin.PasswordHash, &admin.Name, &admin.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("failed to get admin", zap.Error(err), zap.String("email", email))
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}

	return &admin, nil
}
