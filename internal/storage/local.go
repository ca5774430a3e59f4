package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/afero"

	"storagetree/internal/domain"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Local хранит объекты в файловой системе afero.
// В проде это BasePathFs поверх каталога хранилища, в тестах - временный каталог.
type Local struct {
	fs afero.Fs
}

func NewLocal(fsys afero.Fs) *Local {
	return &Local{fs: fsys}
}

// NewLocalAt ограничивает все операции каталогом basePath
func NewLocalAt(basePath string) (*Local, error) {
	if err := os.MkdirAll(basePath, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", basePath, err)
	}
	return NewLocal(afero.NewBasePathFs(afero.NewOsFs(), basePath)), nil
}

func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	ok, err := afero.Exists(l.fs, path)
	if err != nil {
		return false, ioError("stat", path, err)
	}
	return ok, nil
}

func (l *Local) CreateDir(_ context.Context, path string) error {
	if err := l.fs.Mkdir(path, dirPerm); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrDestinationExists, path)
		}
		return ioError("mkdir", path, err)
	}
	return nil
}

func (l *Local) RemoveDir(_ context.Context, path string) error {
	info, err := l.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return ioError("stat", path, err)
	}
	if !info.IsDir() {
		return ioError("rmdir", path, errors.New("not a directory"))
	}
	empty, err := afero.IsEmpty(l.fs, path)
	if err != nil {
		return ioError("readdir", path, err)
	}
	if !empty {
		return fmt.Errorf("%w: %s", ErrNotEmpty, path)
	}
	if err := l.fs.Remove(path); err != nil {
		return ioError("rmdir", path, err)
	}
	return nil
}

func (l *Local) RemoveFile(_ context.Context, path string) error {
	info, err := l.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return ioError("stat", path, err)
	}
	if info.IsDir() {
		return ioError("remove", path, errors.New("is a directory"))
	}
	if err := l.fs.Remove(path); err != nil {
		return ioError("remove", path, err)
	}
	return nil
}

func (l *Local) RenameOrMove(_ context.Context, oldPath, newPath string) error {
	if _, err := l.fs.Stat(oldPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotExist, oldPath)
		}
		return ioError("stat", oldPath, err)
	}
	exists, err := afero.Exists(l.fs, newPath)
	if err != nil {
		return ioError("stat", newPath, err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDestinationExists, newPath)
	}
	if err := l.fs.Rename(oldPath, newPath); err != nil {
		return ioError("rename", oldPath+" -> "+newPath, err)
	}
	return nil
}

func (l *Local) WriteFile(_ context.Context, path string, r io.Reader, size int64) (int64, error) {
	f, err := l.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, fmt.Errorf("%w: %s", ErrDestinationExists, path)
		}
		return 0, ioError("create", path, err)
	}

	n, err := io.Copy(f, io.LimitReader(r, size+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		// недописанный файл не должен остаться на диске
		_ = l.fs.Remove(path)
		return n, ioError("write", path, err)
	}
	if n != size {
		_ = l.fs.Remove(path)
		return n, fmt.Errorf("%w: %s: declared %d, received %d", ErrSizeMismatch, path, size, n)
	}
	return n, nil
}

func (l *Local) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := l.fs.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return nil, ioError("open", path, err)
	}
	return f, nil
}

func (l *Local) FileSize(_ context.Context, path string) (int64, error) {
	info, err := l.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return 0, ioError("stat", path, err)
	}
	return info.Size(), nil
}

func ioError(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", domain.ErrIO, op, path, err)
}
