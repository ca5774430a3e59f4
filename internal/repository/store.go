package repository

import (
	"context"

	"github.com/google/uuid"

	"storagetree/internal/domain"
)

// TreeStore - метаданные папок и файлов. Все выборки ограничены владельцем:
// чужой узел неотличим от несуществующего (domain.ErrNotFound).
type TreeStore interface {
	FindFolder(ctx context.Context, id, ownerID uuid.UUID) (*domain.Folder, error)
	FindFile(ctx context.Context, id, ownerID uuid.UUID) (*domain.File, error)
	FindNode(ctx context.Context, id, ownerID uuid.UUID) (domain.Node, error)
	FindFoldersByName(ctx context.Context, ownerID uuid.UUID, name string) ([]domain.Folder, error)
	// ListChildren возвращает прямых потомков; parentID == nil - корень пользователя
	ListChildren(ctx context.Context, parentID *uuid.UUID, ownerID uuid.UUID) (*domain.Listing, error)
	// PathExists проверяет и папки, и файлы
	PathExists(ctx context.Context, ownerID uuid.UUID, path string) (bool, error)

	// CreateFolder и CreateFile возвращают domain.ErrAlreadyExists при занятом (owner, path)
	CreateFolder(ctx context.Context, folder *domain.Folder) error
	CreateFile(ctx context.Context, file *domain.File) error

	UpdatePath(ctx context.Context, kind domain.NodeKind, id uuid.UUID, newPath string) error
	UpdateParent(ctx context.Context, kind domain.NodeKind, id uuid.UUID, parentID *uuid.UUID) error
	Rename(ctx context.Context, kind domain.NodeKind, id uuid.UUID, newName string) error
	// DeleteNode не проверяет потомков: папку к этому моменту опустошает сервис
	DeleteNode(ctx context.Context, kind domain.NodeKind, id uuid.UUID) error

	SumFileSizes(ctx context.Context, ownerID uuid.UUID) (int64, error)
}

// UserStore - пользователи и их квоты
type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error
	ListUsers(ctx context.Context) ([]domain.User, error)
	// AddUsedSpace атомарно применяет дельту. Положительная дельта сверх квоты
	// отклоняется с domain.ErrInsufficientQuota, отрицательная не опускает счетчик ниже нуля.
	AddUsedSpace(ctx context.Context, id uuid.UUID, delta int64) (*domain.User, error)
	// SetDiskSpace отклоняет лимит меньше занятого места (domain.ErrBelowUsedSpace)
	SetDiskSpace(ctx context.Context, id uuid.UUID, limit int64) (*domain.User, error)
	SetUsedSpace(ctx context.Context, id uuid.UUID, used int64) (*domain.User, error)
}

// Store - транзакционное хранилище метаданных.
// InTx выполняет fn в одной транзакции; вложенный вызов присоединяется к внешней.
type Store interface {
	TreeStore
	UserStore
	InTx(ctx context.Context, fn func(tx Store) error) error
}
