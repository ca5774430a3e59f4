package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storagetree/internal/domain"
	"storagetree/internal/metrics"
	"storagetree/internal/paths"
	"storagetree/internal/repository"
	"storagetree/internal/storage"
)

const (
	opCreateFolder = "create_folder"
	opUploadFile   = "upload_file"
	opRename       = "rename"
	opMove         = "move"
	opDelete       = "delete"
)

// TreeService выполняет мутации дерева. Каждая мутация - это
// проверка, физический шаг, коммит метаданных, а при сбое коммита компенсация.
type TreeService struct {
	store  repository.Store
	fs     storage.Filesystem
	quota  *StorageQuotaService
	locks  *ownerLocks
	logger *zap.Logger
}

func NewTreeService(
	store repository.Store,
	fs storage.Filesystem,
	quota *StorageQuotaService,
	logger *zap.Logger,
) *TreeService {
	return &TreeService{
		store:  store,
		fs:     fs,
		quota:  quota,
		locks:  newOwnerLocks(),
		logger: logger,
	}
}

// ListChildren возвращает прямых потомков папки; folderID == nil - корень
func (s *TreeService) ListChildren(ctx context.Context, p domain.Principal, folderID *uuid.UUID) (*domain.Listing, error) {
	unlock := s.locks.RLock(p.ID)
	defer unlock()

	return s.store.ListChildren(ctx, folderID, p.ID)
}

func (s *TreeService) GetNode(ctx context.Context, p domain.Principal, id uuid.UUID) (domain.Node, error) {
	unlock := s.locks.RLock(p.ID)
	defer unlock()

	return s.store.FindNode(ctx, id, p.ID)
}

// OpenFile открывает содержимое файла. Body закрывает вызывающий.
func (s *TreeService) OpenFile(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.FileDownload, error) {
	unlock := s.locks.RLock(p.ID)
	defer unlock()

	file, err := s.store.FindFile(ctx, id, p.ID)
	if err != nil {
		return nil, err
	}
	body, err := s.fs.Open(ctx, file.Path)
	if err != nil {
		return nil, physicalError(err)
	}
	return &domain.FileDownload{File: file, Body: body}, nil
}

// parentPath возвращает путь папки folderID или корень пользователя
func (s *TreeService) parentPath(ctx context.Context, p domain.Principal, folderID *uuid.UUID) (string, error) {
	if folderID == nil {
		return paths.UserRoot(p.Username)
	}
	folder, err := s.store.FindFolder(ctx, *folderID, p.ID)
	if err != nil {
		return "", err
	}
	return folder.Path, nil
}

// pathTaken - путь занят, если он есть в метаданных или в хранилище
func (s *TreeService) pathTaken(ctx context.Context, ownerID uuid.UUID, path string) (bool, error) {
	known, err := s.store.PathExists(ctx, ownerID, path)
	if err != nil {
		return false, err
	}
	if known {
		return true, nil
	}
	return s.fs.Exists(ctx, path)
}

func (s *TreeService) ensureFree(ctx context.Context, ownerID uuid.UUID, path string) error {
	taken, err := s.pathTaken(ctx, ownerID, path)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: %s already exists", domain.ErrConflict, path)
	}
	return nil
}

// compensate откатывает физический шаг. Ошибка отката только логируется:
// наружу уходит исходная ошибка коммита.
func (s *TreeService) compensate(ctx context.Context, op string, nodeID uuid.UUID, oldPath, newPath string, undo func(ctx context.Context) error) bool {
	err := undo(ctx)
	metrics.RecordCompensation(op, err == nil)
	if err != nil {
		s.logger.Error("compensation failed",
			zap.String("op", op),
			zap.Stringer("node_id", nodeID),
			zap.String("old_path", oldPath),
			zap.String("new_path", newPath),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (s *TreeService) internalError(op string, nodeID uuid.UUID, oldPath, newPath string, cause error) error {
	s.logger.Error("metadata commit failed after physical change",
		zap.String("op", op),
		zap.Stringer("node_id", nodeID),
		zap.String("old_path", oldPath),
		zap.String("new_path", newPath),
		zap.Error(cause),
	)
	return fmt.Errorf("%w: %s %s: %v", domain.ErrInternal, op, nodeID, cause)
}

// physicalError переводит ошибки хранилища в ошибки домена
func physicalError(err error) error {
	switch {
	case errors.Is(err, domain.ErrIO):
		return err
	case errors.Is(err, storage.ErrDestinationExists):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	case errors.Is(err, storage.ErrNotEmpty):
		return fmt.Errorf("%w: %v", domain.ErrNotEmpty, err)
	case errors.Is(err, storage.ErrSizeMismatch):
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
}
