// Package storage скрывает физическое хранилище (локальный диск или S3)
// за одним интерфейсом, чтобы сервисы не работали с вводом-выводом напрямую.
package storage

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotExist          = errors.New("object does not exist")
	ErrDestinationExists = errors.New("destination already exists")
	ErrNotEmpty          = errors.New("directory is not empty")
	ErrSizeMismatch      = errors.New("content length does not match declared size")
)

// Filesystem - набор операций над физическим хранилищем.
// Пути логические, со слешами, от корня хранилища: "/alice/docs/x.txt".
// Любая другая ошибка оборачивает domain.ErrIO.
type Filesystem interface {
	Exists(ctx context.Context, path string) (bool, error)
	CreateDir(ctx context.Context, path string) error
	// RemoveDir удаляет только пустой каталог
	RemoveDir(ctx context.Context, path string) error
	RemoveFile(ctx context.Context, path string) error
	// RenameOrMove никогда не перезаписывает: при занятом newPath возвращает ErrDestinationExists
	RenameOrMove(ctx context.Context, oldPath, newPath string) error
	// WriteFile создает новый файл из ровно size байт r. Тело другой длины
	// дает ErrSizeMismatch, и после ошибки объекта по path нет.
	WriteFile(ctx context.Context, path string, r io.Reader, size int64) (int64, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	FileSize(ctx context.Context, path string) (int64, error)
}
