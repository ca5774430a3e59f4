package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storagetree/internal/domain"
	"storagetree/internal/metrics"
	"storagetree/internal/repository"
	"storagetree/internal/storage"
)

type DeleteOptions struct {
	// Strict отказывает в удалении непустой папки вместо каскада
	Strict bool
}

// DeleteNode удаляет файл или папку. Папка по умолчанию удаляется со всем содержимым.
func (s *TreeService) DeleteNode(ctx context.Context, p domain.Principal, id uuid.UUID, opts DeleteOptions) (err error) {
	defer func(start time.Time) { metrics.ObserveMutation(opDelete, start, err) }(time.Now())

	unlock := s.locks.Lock(p.ID)
	defer unlock()

	node, err := s.store.FindNode(ctx, id, p.ID)
	if err != nil {
		return err
	}

	switch n := node.(type) {
	case *domain.File:
		return s.deleteFile(ctx, n)
	case *domain.Folder:
		if opts.Strict {
			listing, err := s.store.ListChildren(ctx, &n.ID, p.ID)
			if err != nil {
				return err
			}
			if !listing.IsEmpty() {
				return fmt.Errorf("%w: %s", domain.ErrNotEmpty, n.Path)
			}
		}
		return s.deleteFolder(ctx, n)
	default:
		return fmt.Errorf("%w: unknown node kind %s", domain.ErrInternal, node.NodeKind())
	}
}

// deleteFile: физическое удаление (уже удаленный файл не ошибка), затем запись и квота одной транзакцией
func (s *TreeService) deleteFile(ctx context.Context, file *domain.File) error {
	if err := s.fs.RemoveFile(ctx, file.Path); err != nil && !errors.Is(err, storage.ErrNotExist) {
		return physicalError(err)
	}

	ctx = context.WithoutCancel(ctx)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.DeleteNode(ctx, domain.KindFile, file.ID); err != nil {
			return err
		}
		_, err := s.quota.Commit(ctx, tx, file.OwnerID, -file.SizeBytes)
		return err
	})
	if err != nil {
		return s.internalError(opDelete, file.ID, file.Path, "", err)
	}
	return nil
}

// deleteFolder удаляет поддерево снизу вверх. Порядок обхода собирается заранее
// в ширину, поэтому при проходе с конца каждая папка обрабатывается после всех своих подпапок.
// Каждый узел удаляется своей транзакцией: сбой в середине оставляет согласованное, хоть и неполное, дерево.
func (s *TreeService) deleteFolder(ctx context.Context, root *domain.Folder) error {
	ctx = context.WithoutCancel(ctx)

	order := []domain.Folder{*root}
	for i := 0; i < len(order); i++ {
		listing, err := s.store.ListChildren(ctx, &order[i].ID, root.OwnerID)
		if err != nil {
			return err
		}
		order = append(order, listing.Folders...)
	}

	for i := len(order) - 1; i >= 0; i-- {
		folder := order[i]

		listing, err := s.store.ListChildren(ctx, &folder.ID, root.OwnerID)
		if err != nil {
			return err
		}
		for j := range listing.Files {
			if err := s.deleteFile(ctx, &listing.Files[j]); err != nil {
				return err
			}
		}

		if err := s.fs.RemoveDir(ctx, folder.Path); err != nil && !errors.Is(err, storage.ErrNotExist) {
			return physicalError(err)
		}
		if err := s.store.DeleteNode(ctx, domain.KindFolder, folder.ID); err != nil {
			// запись осталась, значит каталог должен вернуться
			s.compensate(ctx, opDelete, folder.ID, folder.Path, "", func(ctx context.Context) error {
				return s.fs.CreateDir(ctx, folder.Path)
			})
			return s.internalError(opDelete, folder.ID, folder.Path, "", err)
		}
	}
	return nil
}
