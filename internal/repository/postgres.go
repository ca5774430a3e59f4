package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"storagetree/internal/domain"
)

const uniqueViolation = "23505"

// PostgresStore собирает репозитории поверх одного соединения или транзакции
type PostgresStore struct {
	db      *sqlx.DB
	tx      *sqlx.Tx
	folders *FolderRepository
	files   *FileRepository
	users   *UserRepository
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return newPostgresStore(db, nil)
}

func newPostgresStore(db *sqlx.DB, tx *sqlx.Tx) *PostgresStore {
	var ext sqlx.ExtContext = db
	if tx != nil {
		ext = tx
	}
	return &PostgresStore{
		db:      db,
		tx:      tx,
		folders: NewFolderRepository(ext),
		files:   NewFileRepository(ext),
		users:   NewUserRepository(ext),
	}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newPostgresStore(s.db, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindFolder(ctx context.Context, id, ownerID uuid.UUID) (*domain.Folder, error) {
	return s.folders.GetByID(ctx, id, ownerID)
}

func (s *PostgresStore) FindFile(ctx context.Context, id, ownerID uuid.UUID) (*domain.File, error) {
	return s.files.GetByID(ctx, id, ownerID)
}

func (s *PostgresStore) FindNode(ctx context.Context, id, ownerID uuid.UUID) (domain.Node, error) {
	folder, err := s.folders.GetByID(ctx, id, ownerID)
	if err == nil {
		return folder, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	file, err := s.files.GetByID(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (s *PostgresStore) FindFoldersByName(ctx context.Context, ownerID uuid.UUID, name string) ([]domain.Folder, error) {
	return s.folders.GetByName(ctx, ownerID, name)
}

func (s *PostgresStore) ListChildren(ctx context.Context, parentID *uuid.UUID, ownerID uuid.UUID) (*domain.Listing, error) {
	listing := &domain.Listing{}
	if parentID != nil {
		parent, err := s.folders.GetByID(ctx, *parentID, ownerID)
		if err != nil {
			return nil, err
		}
		listing.Folder = parent
	}

	folders, err := s.folders.GetChildren(ctx, parentID, ownerID)
	if err != nil {
		return nil, err
	}
	files, err := s.files.GetByFolder(ctx, parentID, ownerID)
	if err != nil {
		return nil, err
	}
	listing.Folders = folders
	listing.Files = files
	return listing, nil
}

func (s *PostgresStore) PathExists(ctx context.Context, ownerID uuid.UUID, path string) (bool, error) {
	query := `
        SELECT EXISTS (SELECT 1 FROM folders WHERE owner_id = $1 AND path = $2)
            OR EXISTS (SELECT 1 FROM files WHERE owner_id = $1 AND path = $2)`

	var exists bool
	if err := sqlx.GetContext(ctx, s.ext(), &exists, query, ownerID, path); err != nil {
		return false, fmt.Errorf("failed to check path: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CreateFolder(ctx context.Context, folder *domain.Folder) error {
	return s.folders.Create(ctx, folder)
}

func (s *PostgresStore) CreateFile(ctx context.Context, file *domain.File) error {
	return s.files.Create(ctx, file)
}

func (s *PostgresStore) UpdatePath(ctx context.Context, kind domain.NodeKind, id uuid.UUID, newPath string) error {
	if kind == domain.KindFolder {
		return s.folders.UpdatePath(ctx, id, newPath)
	}
	return s.files.UpdatePath(ctx, id, newPath)
}

func (s *PostgresStore) UpdateParent(ctx context.Context, kind domain.NodeKind, id uuid.UUID, parentID *uuid.UUID) error {
	if kind == domain.KindFolder {
		return s.folders.UpdateParent(ctx, id, parentID)
	}
	return s.files.UpdateFolder(ctx, id, parentID)
}

func (s *PostgresStore) Rename(ctx context.Context, kind domain.NodeKind, id uuid.UUID, newName string) error {
	if kind == domain.KindFolder {
		return s.folders.UpdateName(ctx, id, newName)
	}
	return s.files.UpdateName(ctx, id, newName)
}

func (s *PostgresStore) DeleteNode(ctx context.Context, kind domain.NodeKind, id uuid.UUID) error {
	if kind == domain.KindFolder {
		return s.folders.Delete(ctx, id)
	}
	return s.files.Delete(ctx, id)
}

func (s *PostgresStore) SumFileSizes(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	return s.files.SumSizes(ctx, ownerID)
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *domain.User) error {
	return s.users.Create(ctx, user)
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.users.List(ctx)
}

func (s *PostgresStore) AddUsedSpace(ctx context.Context, id uuid.UUID, delta int64) (*domain.User, error) {
	return s.users.AddUsedSpace(ctx, id, delta)
}

func (s *PostgresStore) SetDiskSpace(ctx context.Context, id uuid.UUID, limit int64) (*domain.User, error) {
	return s.users.SetDiskSpace(ctx, id, limit)
}

func (s *PostgresStore) SetUsedSpace(ctx context.Context, id uuid.UUID, used int64) (*domain.User, error) {
	return s.users.SetUsedSpace(ctx, id, used)
}

func (s *PostgresStore) ext() sqlx.ExtContext {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func checkAffected(result sql.Result, entity string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, entity)
	}
	return nil
}
