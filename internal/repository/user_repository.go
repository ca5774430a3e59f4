package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"storagetree/internal/domain"
)

const userColumns = `id, username, role, disk_space, used_space, root_path, created_at, updated_at`

// UserRepository хранит пользователей вместе с их квотой: лимит и счетчик
// занятого места живут в одной строке и меняются одним UPDATE.
type UserRepository struct {
	db sqlx.ExtContext
}

func NewUserRepository(db sqlx.ExtContext) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
        INSERT INTO users (id, username, role, disk_space, used_space, root_path)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		user.ID,
		user.Username,
		user.Role,
		user.DiskSpace,
		user.UsedSpace,
		user.RootPath,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s", domain.ErrAlreadyExists, user.Username)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user domain.User
	err := sqlx.GetContext(ctx, r.db, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	users := []domain.User{}
	if err := sqlx.SelectContext(ctx, r.db, &users, `SELECT `+userColumns+` FROM users ORDER BY username`); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// AddUsedSpace - проверка квоты и изменение счетчика одним условным UPDATE,
// поэтому два параллельных резерва не могут вместе превысить лимит.
func (r *UserRepository) AddUsedSpace(ctx context.Context, id uuid.UUID, delta int64) (*domain.User, error) {
	query := `
        UPDATE users
        SET used_space = GREATEST(0, used_space + $1),
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $2 AND ($1 <= 0 OR used_space + $1 <= disk_space)
        RETURNING ` + userColumns

	var user domain.User
	err := sqlx.GetContext(ctx, r.db, &user, query, delta, id)
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update used space: %w", err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: need %d bytes, available %d",
		domain.ErrInsufficientQuota, delta, current.DiskSpace-current.UsedSpace)
}

func (r *UserRepository) SetDiskSpace(ctx context.Context, id uuid.UUID, limit int64) (*domain.User, error) {
	query := `
        UPDATE users
        SET disk_space = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2 AND used_space <= $1
        RETURNING ` + userColumns

	var user domain.User
	err := sqlx.GetContext(ctx, r.db, &user, query, limit, id)
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update disk space: %w", err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: used %d, requested %d", domain.ErrBelowUsedSpace, current.UsedSpace, limit)
}

func (r *UserRepository) SetUsedSpace(ctx context.Context, id uuid.UUID, used int64) (*domain.User, error) {
	query := `
        UPDATE users
        SET used_space = GREATEST(0, $1), updated_at = CURRENT_TIMESTAMP
        WHERE id = $2
        RETURNING ` + userColumns

	var user domain.User
	if err := sqlx.GetContext(ctx, r.db, &user, query, used, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to set used space: %w", err)
	}
	return &user, nil
}
