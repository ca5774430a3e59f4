package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"storagetree/internal/domain"
	"storagetree/internal/repository"
	"storagetree/internal/repository/kvstore"
	"storagetree/internal/storage"
)

var errInjected = errors.New("injected failure")

// faultyStore пропускает вызовы к настоящему хранилищу, пока метод не помечен как сбойный
type faultyStore struct {
	repository.Store
	faults *faults
}

type faults struct {
	mu     sync.Mutex
	failOn map[string]error
}

func (f *faults) set(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[method] = err
}

func (f *faults) clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn = map[string]error{}
}

func (f *faults) get(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failOn[method]
}

func (s *faultyStore) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.InTx(ctx, func(tx repository.Store) error {
		return fn(&faultyStore{Store: tx, faults: s.faults})
	})
}

func (s *faultyStore) CreateFolder(ctx context.Context, folder *domain.Folder) error {
	if err := s.faults.get("CreateFolder"); err != nil {
		return err
	}
	return s.Store.CreateFolder(ctx, folder)
}

func (s *faultyStore) CreateFile(ctx context.Context, file *domain.File) error {
	if err := s.faults.get("CreateFile"); err != nil {
		return err
	}
	return s.Store.CreateFile(ctx, file)
}

func (s *faultyStore) UpdatePath(ctx context.Context, kind domain.NodeKind, id uuid.UUID, newPath string) error {
	if err := s.faults.get("UpdatePath:" + string(kind)); err != nil {
		return err
	}
	return s.Store.UpdatePath(ctx, kind, id, newPath)
}

func (s *faultyStore) DeleteNode(ctx context.Context, kind domain.NodeKind, id uuid.UUID) error {
	if err := s.faults.get("DeleteNode"); err != nil {
		return err
	}
	if err := s.faults.get("DeleteNode:" + id.String()); err != nil {
		return err
	}
	return s.Store.DeleteNode(ctx, kind, id)
}

// faultyFS ломает отдельные операции над хранилищем
type faultyFS struct {
	storage.Filesystem
	faults *faults
}

func (f *faultyFS) RemoveDir(ctx context.Context, path string) error {
	if err := f.faults.get("RemoveDir"); err != nil {
		return err
	}
	if err := f.faults.get("RemoveDir:" + path); err != nil {
		return err
	}
	return f.Filesystem.RemoveDir(ctx, path)
}

func (f *faultyFS) CreateDir(ctx context.Context, path string) error {
	if err := f.faults.get("CreateDir"); err != nil {
		return err
	}
	return f.Filesystem.CreateDir(ctx, path)
}

func (f *faultyFS) RemoveFile(ctx context.Context, path string) error {
	if err := f.faults.get("RemoveFile"); err != nil {
		return err
	}
	return f.Filesystem.RemoveFile(ctx, path)
}

type testEnv struct {
	tree   *TreeService
	quota  *StorageQuotaService
	admin  *AdminService
	store  repository.Store
	fs     storage.Filesystem
	faults *faults
	logs   *observer.ObservedLogs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	kv, err := kvstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	local, err := storage.NewLocalAt(t.TempDir())
	require.NoError(t, err)

	f := &faults{failOn: map[string]error{}}
	store := &faultyStore{Store: kv, faults: f}
	fs := &faultyFS{Filesystem: local, faults: f}

	core, logs := observer.New(zapcore.ErrorLevel)
	logger := zap.New(core)

	quota := NewStorageQuotaService(store, logger)
	return &testEnv{
		tree:   NewTreeService(store, fs, quota, logger),
		quota:  quota,
		admin:  NewAdminService(store, fs, 0, logger),
		store:  store,
		fs:     fs,
		faults: f,
		logs:   logs,
	}
}

func (e *testEnv) newUser(t *testing.T, username string, diskSpace int64) domain.Principal {
	t.Helper()
	user, err := e.admin.Provision(context.Background(), CreateUserRequest{Username: username, DiskSpace: diskSpace})
	require.NoError(t, err)
	return user.Principal()
}

func (e *testEnv) mkdir(t *testing.T, p domain.Principal, parent *domain.Folder, name string) *domain.Folder {
	t.Helper()
	var parentID *uuid.UUID
	if parent != nil {
		parentID = &parent.ID
	}
	folder, err := e.tree.CreateFolder(context.Background(), p, parentID, name)
	require.NoError(t, err)
	return folder
}

func (e *testEnv) upload(t *testing.T, p domain.Principal, folder *domain.Folder, name string, size int) *domain.File {
	t.Helper()
	file, err := e.tree.UploadFile(context.Background(), p, fileUpload(folder, name, size))
	require.NoError(t, err)
	return file
}

func (e *testEnv) usedSpace(t *testing.T, p domain.Principal) int64 {
	t.Helper()
	user, err := e.store.GetUser(context.Background(), p.ID)
	require.NoError(t, err)
	return user.UsedSpace
}

func (e *testEnv) exists(t *testing.T, path string) bool {
	t.Helper()
	ok, err := e.fs.Exists(context.Background(), path)
	require.NoError(t, err)
	return ok
}

func (e *testEnv) folder(t *testing.T, p domain.Principal, id uuid.UUID) *domain.Folder {
	t.Helper()
	folder, err := e.store.FindFolder(context.Background(), id, p.ID)
	require.NoError(t, err)
	return folder
}

func (e *testEnv) file(t *testing.T, p domain.Principal, id uuid.UUID) *domain.File {
	t.Helper()
	file, err := e.store.FindFile(context.Background(), id, p.ID)
	require.NoError(t, err)
	return file
}

func fileUpload(folder *domain.Folder, name string, size int) domain.FileUpload {
	upload := domain.FileUpload{
		OriginalName: name,
		Size:         int64(size),
		Content:      bytes.NewReader(bytes.Repeat([]byte("x"), size)),
	}
	if folder != nil {
		upload.FolderID = &folder.ID
	}
	return upload
}
