package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storagetree/internal/domain"
	"storagetree/internal/metrics"
	"storagetree/internal/paths"
	"storagetree/internal/repository"
)

// RenameNode меняет имя папки или файла в пределах того же родителя
func (s *TreeService) RenameNode(ctx context.Context, p domain.Principal, id uuid.UUID, newName string) (node domain.Node, err error) {
	defer func(start time.Time) { metrics.ObserveMutation(opRename, start, err) }(time.Now())

	unlock := s.locks.Lock(p.ID)
	defer unlock()

	if err := paths.ValidateName(newName); err != nil {
		return nil, err
	}
	root, err := paths.UserRoot(p.Username)
	if err != nil {
		return nil, err
	}
	node, err = s.store.FindNode(ctx, id, p.ID)
	if err != nil {
		return nil, err
	}
	newPath, err := paths.Resolve(root, paths.Dir(node.NodePath()), newName)
	if err != nil {
		return nil, err
	}
	if err := s.ensureFree(ctx, p.ID, newPath); err != nil {
		return nil, err
	}

	return s.relocate(ctx, opRename, p, node, relocation{
		newPath: newPath,
		newName: newName,
	})
}

// MoveNode переносит узел в папку destinationID (nil - корень пользователя)
func (s *TreeService) MoveNode(ctx context.Context, p domain.Principal, id uuid.UUID, destinationID *uuid.UUID) (node domain.Node, err error) {
	defer func(start time.Time) { metrics.ObserveMutation(opMove, start, err) }(time.Now())

	unlock := s.locks.Lock(p.ID)
	defer unlock()

	root, err := paths.UserRoot(p.Username)
	if err != nil {
		return nil, err
	}
	node, err = s.store.FindNode(ctx, id, p.ID)
	if err != nil {
		return nil, err
	}
	destPath, err := s.parentPath(ctx, p, destinationID)
	if err != nil {
		return nil, err
	}
	if node.NodeKind() == domain.KindFolder && destinationID != nil {
		if *destinationID == id || paths.IsWithin(destPath, node.NodePath()) {
			return nil, fmt.Errorf("%w: cannot move %s into itself", domain.ErrConflict, node.NodePath())
		}
	}
	newPath, err := paths.Resolve(root, destPath, node.NodeName())
	if err != nil {
		return nil, err
	}
	if err := s.ensureFree(ctx, p.ID, newPath); err != nil {
		return nil, err
	}

	return s.relocate(ctx, opMove, p, node, relocation{
		newPath:      newPath,
		newName:      node.NodeName(),
		changeParent: true,
		newParent:    destinationID,
	})
}

type relocation struct {
	newPath      string
	newName      string
	changeParent bool
	newParent    *uuid.UUID
}

// relocate переносит объект физически, затем одной транзакцией обновляет
// узел и пути всех его потомков. Если транзакция не прошла, объект возвращается на место.
func (s *TreeService) relocate(ctx context.Context, op string, p domain.Principal, node domain.Node, r relocation) (domain.Node, error) {
	id, kind, oldPath := node.NodeID(), node.NodeKind(), node.NodePath()

	if err := s.fs.RenameOrMove(ctx, oldPath, r.newPath); err != nil {
		return nil, physicalError(err)
	}

	ctx = context.WithoutCancel(ctx)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if r.newName != node.NodeName() {
			if err := tx.Rename(ctx, kind, id, r.newName); err != nil {
				return err
			}
		}
		if r.changeParent {
			if err := tx.UpdateParent(ctx, kind, id, r.newParent); err != nil {
				return err
			}
		}
		if err := tx.UpdatePath(ctx, kind, id, r.newPath); err != nil {
			return err
		}
		if kind == domain.KindFolder {
			return cascadePaths(ctx, tx, p.ID, id, oldPath, r.newPath)
		}
		return nil
	})
	if err != nil {
		s.compensate(ctx, op, id, oldPath, r.newPath, func(ctx context.Context) error {
			return s.fs.RenameOrMove(ctx, r.newPath, oldPath)
		})
		return nil, s.internalError(op, id, oldPath, r.newPath, err)
	}

	return s.store.FindNode(ctx, id, p.ID)
}
