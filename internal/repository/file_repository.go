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

const fileColumns = `id, filename, original_name, path, size_bytes, mime_type, owner_id, folder_id, created_at, updated_at`

type FileRepository struct {
	db sqlx.ExtContext
}

func NewFileRepository(db sqlx.ExtContext) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Create(ctx context.Context, file *domain.File) error {
	query := `
        INSERT INTO files (id, filename, original_name, path, size_bytes, mime_type, owner_id, folder_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(
		ctx,
		query,
		file.ID,
		file.Filename,
		file.OriginalName,
		file.Path,
		file.SizeBytes,
		file.MIMEType,
		file.OwnerID,
		file.FolderID,
	).Scan(&file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: file %s", domain.ErrAlreadyExists, file.Path)
		}
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

func (r *FileRepository) GetByID(ctx context.Context, id, ownerID uuid.UUID) (*domain.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1 AND owner_id = $2`

	var file domain.File
	if err := sqlx.GetContext(ctx, r.db, &file, query, id, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: file %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return &file, nil
}

func (r *FileRepository) GetByFolder(ctx context.Context, folderID *uuid.UUID, ownerID uuid.UUID) ([]domain.File, error) {
	files := []domain.File{}
	var err error
	if folderID == nil {
		err = sqlx.SelectContext(ctx, r.db, &files,
			`SELECT `+fileColumns+` FROM files WHERE owner_id = $1 AND folder_id IS NULL ORDER BY filename`,
			ownerID)
	} else {
		err = sqlx.SelectContext(ctx, r.db, &files,
			`SELECT `+fileColumns+` FROM files WHERE owner_id = $1 AND folder_id = $2 ORDER BY filename`,
			ownerID, *folderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get files: %w", err)
	}
	return files, nil
}

func (r *FileRepository) UpdatePath(ctx context.Context, id uuid.UUID, path string) error {
	return r.exec(ctx, "update file path", `
        UPDATE files
        SET path = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`, path, id)
}

func (r *FileRepository) UpdateFolder(ctx context.Context, id uuid.UUID, folderID *uuid.UUID) error {
	return r.exec(ctx, "update file folder", `
        UPDATE files
        SET folder_id = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`, folderID, id)
}

// UpdateName меняет и имя на диске, и исходное имя: после переименования они совпадают
func (r *FileRepository) UpdateName(ctx context.Context, id uuid.UUID, name string) error {
	return r.exec(ctx, "update file name", `
        UPDATE files
        SET filename = $1, original_name = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`, name, id)
}

func (r *FileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "delete file", `DELETE FROM files WHERE id = $1`, id)
}

func (r *FileRepository) SumSizes(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var total int64
	err := sqlx.GetContext(ctx, r.db, &total,
		`SELECT COALESCE(SUM(size_bytes), 0) FROM files WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum file sizes: %w", err)
	}
	return total, nil
}

func (r *FileRepository) exec(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, op)
		}
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return checkAffected(result, "file")
}
