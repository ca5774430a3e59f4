package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"storagetree/internal/domain"
	"storagetree/internal/metrics"
	"storagetree/internal/paths"
	"storagetree/internal/repository"
)

// CreateFolder создает папку name внутри parentID (nil - корень пользователя)
func (s *TreeService) CreateFolder(ctx context.Context, p domain.Principal, parentID *uuid.UUID, name string) (folder *domain.Folder, err error) {
	defer func(start time.Time) { metrics.ObserveMutation(opCreateFolder, start, err) }(time.Now())

	unlock := s.locks.Lock(p.ID)
	defer unlock()

	root, err := paths.UserRoot(p.Username)
	if err != nil {
		return nil, err
	}
	parentPath, err := s.parentPath(ctx, p, parentID)
	if err != nil {
		return nil, err
	}
	path, err := paths.Resolve(root, parentPath, name)
	if err != nil {
		return nil, err
	}
	if err := s.ensureFree(ctx, p.ID, path); err != nil {
		return nil, err
	}

	if err := s.fs.CreateDir(ctx, path); err != nil {
		return nil, physicalError(err)
	}

	ctx = context.WithoutCancel(ctx)
	folder = &domain.Folder{
		ID:       uuid.New(),
		Name:     name,
		OwnerID:  p.ID,
		ParentID: parentID,
		Path:     path,
	}
	if err := s.store.CreateFolder(ctx, folder); err != nil {
		s.compensate(ctx, opCreateFolder, folder.ID, "", path, func(ctx context.Context) error {
			return s.fs.RemoveDir(ctx, path)
		})
		return nil, s.internalError(opCreateFolder, folder.ID, "", path, err)
	}
	return folder, nil
}

// cascadePaths переписывает пути всех потомков папки с oldPrefix на newPrefix.
// Обход явным стеком, родитель раньше детей, на каждом уровне сначала папки, потом файлы.
func cascadePaths(ctx context.Context, tx repository.Store, ownerID, folderID uuid.UUID, oldPrefix, newPrefix string) error {
	stack := []uuid.UUID{folderID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		listing, err := tx.ListChildren(ctx, &id, ownerID)
		if err != nil {
			return err
		}
		for _, child := range listing.Folders {
			newPath, err := paths.Rebase(child.Path, oldPrefix, newPrefix)
			if err != nil {
				return err
			}
			if err := tx.UpdatePath(ctx, domain.KindFolder, child.ID, newPath); err != nil {
				return err
			}
			stack = append(stack, child.ID)
		}
		for _, file := range listing.Files {
			newPath, err := paths.Rebase(file.Path, oldPrefix, newPrefix)
			if err != nil {
				return err
			}
			if err := tx.UpdatePath(ctx, domain.KindFile, file.ID, newPath); err != nil {
				return err
			}
		}
	}
	return nil
}
