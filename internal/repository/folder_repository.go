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

const folderColumns = `id, name, owner_id, parent_id, path, created_at, updated_at`

type FolderRepository struct {
	db sqlx.ExtContext
}

func NewFolderRepository(db sqlx.ExtContext) *FolderRepository {
	return &FolderRepository{db: db}
}

func (r *FolderRepository) Create(ctx context.Context, folder *domain.Folder) error {
	query := `
        INSERT INTO folders (id, name, owner_id, parent_id, path)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(
		ctx,
		query,
		folder.ID,
		folder.Name,
		folder.OwnerID,
		folder.ParentID,
		folder.Path,
	).Scan(&folder.CreatedAt, &folder.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: folder %s", domain.ErrAlreadyExists, folder.Path)
		}
		return fmt.Errorf("failed to create folder: %w", err)
	}
	return nil
}

func (r *FolderRepository) GetByID(ctx context.Context, id, ownerID uuid.UUID) (*domain.Folder, error) {
	query := `SELECT ` + folderColumns + ` FROM folders WHERE id = $1 AND owner_id = $2`

	var folder domain.Folder
	if err := sqlx.GetContext(ctx, r.db, &folder, query, id, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: folder %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	return &folder, nil
}

func (r *FolderRepository) GetByName(ctx context.Context, ownerID uuid.UUID, name string) ([]domain.Folder, error) {
	query := `SELECT ` + folderColumns + ` FROM folders WHERE owner_id = $1 AND name = $2 ORDER BY path`

	folders := []domain.Folder{}
	if err := sqlx.SelectContext(ctx, r.db, &folders, query, ownerID, name); err != nil {
		return nil, fmt.Errorf("failed to get folders by name: %w", err)
	}
	return folders, nil
}

func (r *FolderRepository) GetChildren(ctx context.Context, parentID *uuid.UUID, ownerID uuid.UUID) ([]domain.Folder, error) {
	folders := []domain.Folder{}
	var err error
	if parentID == nil {
		err = sqlx.SelectContext(ctx, r.db, &folders,
			`SELECT `+folderColumns+` FROM folders WHERE owner_id = $1 AND parent_id IS NULL ORDER BY name`,
			ownerID)
	} else {
		err = sqlx.SelectContext(ctx, r.db, &folders,
			`SELECT `+folderColumns+` FROM folders WHERE owner_id = $1 AND parent_id = $2 ORDER BY name`,
			ownerID, *parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subfolders: %w", err)
	}
	return folders, nil
}

func (r *FolderRepository) UpdatePath(ctx context.Context, id uuid.UUID, path string) error {
	return r.exec(ctx, "update folder path", `
        UPDATE folders
        SET path = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`, path, id)
}

func (r *FolderRepository) UpdateParent(ctx context.Context, id uuid.UUID, parentID *uuid.UUID) error {
	return r.exec(ctx, "update folder parent", `
        UPDATE folders
        SET parent_id = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`, parentID, id)
}

func (r *FolderRepository) UpdateName(ctx context.Context, id uuid.UUID, name string) error {
	return r.exec(ctx, "update folder name", `
        UPDATE folders
        SET name = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`, name, id)
}

func (r *FolderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "delete folder", `DELETE FROM folders WHERE id = $1`, id)
}

func (r *FolderRepository) exec(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, op)
		}
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return checkAffected(result, "folder")
}
