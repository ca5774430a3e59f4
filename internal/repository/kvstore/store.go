// Package kvstore - встраиваемое хранилище метаданных на BadgerDB.
// Используется для однопроцессных развертываний без Postgres и в тестах.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"storagetree/internal/domain"
	"storagetree/internal/repository"
)

const maxConflictRetries = 10

type Config struct {
	Dir      string `mapstructure:"Dir"`
	InMemory bool   `mapstructure:"InMemory"`
}

type Store struct {
	db  *badger.DB
	txn *badger.Txn
}

var _ repository.Store = (*Store)(nil)

func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", cfg.Dir, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory - хранилище без диска, для тестов
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.txn != nil {
		return fn(s)
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return fn(&Store{db: s.db, txn: txn})
	})
}

func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.txn != nil {
		return fn(s.txn)
	}
	return s.db.View(fn)
}

// update повторяет транзакцию при конфликте записи: badger использует
// оптимистичные транзакции, и проигравшая сторона должна перечитать данные.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if s.txn != nil {
		return fn(s.txn)
	}
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("transaction conflict after %d attempts: %w", maxConflictRetries, err)
}

// nodeRecord - значение ключа n:<id>
type nodeRecord struct {
	Kind   domain.NodeKind `json:"kind"`
	Folder *domain.Folder  `json:"folder,omitempty"`
	File   *domain.File    `json:"file,omitempty"`
}

func (r *nodeRecord) node() domain.Node {
	if r.Kind == domain.KindFolder {
		return r.Folder
	}
	return r.File
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return sonic.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return txn.Set(key, data)
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// scanIDs собирает идентификаторы из хвостов ключей с данным префиксом.
// Итератор закрывается до того, как вызывающий начнет читать записи.
func scanIDs(txn *badger.Txn, prefix []byte) ([]uuid.UUID, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []uuid.UUID
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		id, err := uuid.Parse(string(it.Item().Key()[len(prefix):]))
		if err != nil {
			return nil, fmt.Errorf("corrupted index key %q: %w", it.Item().Key(), err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func loadNode(txn *badger.Txn, id uuid.UUID) (*nodeRecord, error) {
	var rec nodeRecord
	if err := getJSON(txn, keyNode(id), &rec); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: node %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	return &rec, nil
}

func loadOwnedNode(txn *badger.Txn, id, ownerID uuid.UUID) (*nodeRecord, error) {
	rec, err := loadNode(txn, id)
	if err != nil {
		return nil, err
	}
	if rec.node().NodeOwner() != ownerID {
		return nil, fmt.Errorf("%w: node %s", domain.ErrNotFound, id)
	}
	return rec, nil
}

func loadKind(txn *badger.Txn, kind domain.NodeKind, id uuid.UUID) (*nodeRecord, error) {
	rec, err := loadNode(txn, id)
	if err != nil {
		return nil, err
	}
	if rec.Kind != kind {
		return nil, fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, id)
	}
	return rec, nil
}

func (s *Store) FindFolder(ctx context.Context, id, ownerID uuid.UUID) (*domain.Folder, error) {
	var folder *domain.Folder
	err := s.view(ctx, func(txn *badger.Txn) error {
		rec, err := loadOwnedNode(txn, id, ownerID)
		if err != nil {
			return err
		}
		if rec.Kind != domain.KindFolder {
			return fmt.Errorf("%w: folder %s", domain.ErrNotFound, id)
		}
		folder = rec.Folder
		return nil
	})
	return folder, err
}

func (s *Store) FindFile(ctx context.Context, id, ownerID uuid.UUID) (*domain.File, error) {
	var file *domain.File
	err := s.view(ctx, func(txn *badger.Txn) error {
		rec, err := loadOwnedNode(txn, id, ownerID)
		if err != nil {
			return err
		}
		if rec.Kind != domain.KindFile {
			return fmt.Errorf("%w: file %s", domain.ErrNotFound, id)
		}
		file = rec.File
		return nil
	})
	return file, err
}

func (s *Store) FindNode(ctx context.Context, id, ownerID uuid.UUID) (domain.Node, error) {
	var node domain.Node
	err := s.view(ctx, func(txn *badger.Txn) error {
		rec, err := loadOwnedNode(txn, id, ownerID)
		if err != nil {
			return err
		}
		node = rec.node()
		return nil
	})
	return node, err
}

func (s *Store) FindFoldersByName(ctx context.Context, ownerID uuid.UUID, name string) ([]domain.Folder, error) {
	folders := []domain.Folder{}
	err := s.view(ctx, func(txn *badger.Txn) error {
		ids, err := scanIDs(txn, keyOwnedPrefix(ownerID))
		if err != nil {
			return err
		}
		for _, id := range ids {
			rec, err := loadNode(txn, id)
			if err != nil {
				return err
			}
			if rec.Kind == domain.KindFolder && rec.Folder.Name == name {
				folders = append(folders, *rec.Folder)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(folders, func(a, b domain.Folder) int { return strings.Compare(a.Path, b.Path) })
	return folders, nil
}

func (s *Store) ListChildren(ctx context.Context, parentID *uuid.UUID, ownerID uuid.UUID) (*domain.Listing, error) {
	listing := &domain.Listing{Folders: []domain.Folder{}, Files: []domain.File{}}
	err := s.view(ctx, func(txn *badger.Txn) error {
		if parentID != nil {
			rec, err := loadOwnedNode(txn, *parentID, ownerID)
			if err != nil {
				return err
			}
			if rec.Kind != domain.KindFolder {
				return fmt.Errorf("%w: folder %s", domain.ErrNotFound, *parentID)
			}
			listing.Folder = rec.Folder
		}

		ids, err := scanIDs(txn, keyChildPrefix(ownerID, parentID))
		if err != nil {
			return err
		}
		for _, id := range ids {
			rec, err := loadNode(txn, id)
			if err != nil {
				return err
			}
			if rec.Kind == domain.KindFolder {
				listing.Folders = append(listing.Folders, *rec.Folder)
			} else {
				listing.Files = append(listing.Files, *rec.File)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(listing.Folders, func(a, b domain.Folder) int { return strings.Compare(a.Name, b.Name) })
	slices.SortFunc(listing.Files, func(a, b domain.File) int { return strings.Compare(a.Filename, b.Filename) })
	return listing, nil
}

func (s *Store) PathExists(ctx context.Context, ownerID uuid.UUID, path string) (bool, error) {
	var found bool
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		found, err = exists(txn, keyPath(ownerID, path))
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to check path: %w", err)
	}
	return found, nil
}

func (s *Store) CreateFolder(ctx context.Context, folder *domain.Folder) error {
	now := time.Now().UTC()
	folder.CreatedAt, folder.UpdatedAt = now, now
	return s.update(ctx, func(txn *badger.Txn) error {
		return insertNode(txn, &nodeRecord{Kind: domain.KindFolder, Folder: folder})
	})
}

func (s *Store) CreateFile(ctx context.Context, file *domain.File) error {
	now := time.Now().UTC()
	file.CreatedAt, file.UpdatedAt = now, now
	return s.update(ctx, func(txn *badger.Txn) error {
		return insertNode(txn, &nodeRecord{Kind: domain.KindFile, File: file})
	})
}

func insertNode(txn *badger.Txn, rec *nodeRecord) error {
	node := rec.node()
	owner := node.NodeOwner()

	if ok, err := exists(txn, keyUser(owner)); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: user %s", domain.ErrNotFound, owner)
	}
	if parent := node.NodeParent(); parent != nil {
		if _, err := loadKind(txn, domain.KindFolder, *parent); err != nil {
			return err
		}
	}
	if ok, err := exists(txn, keyPath(owner, node.NodePath())); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s %s", domain.ErrAlreadyExists, rec.Kind, node.NodePath())
	}

	if err := setJSON(txn, keyNode(node.NodeID()), rec); err != nil {
		return err
	}
	id := []byte(node.NodeID().String())
	if err := txn.Set(keyPath(owner, node.NodePath()), id); err != nil {
		return err
	}
	if err := txn.Set(keyChild(owner, node.NodeParent(), node.NodeID()), nil); err != nil {
		return err
	}
	return txn.Set(keyOwned(owner, node.NodeID()), nil)
}

func (s *Store) UpdatePath(ctx context.Context, kind domain.NodeKind, id uuid.UUID, newPath string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		rec, err := loadKind(txn, kind, id)
		if err != nil {
			return err
		}
		node := rec.node()
		oldPath := node.NodePath()
		if oldPath == newPath {
			return nil
		}
		if ok, err := exists(txn, keyPath(node.NodeOwner(), newPath)); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: %s %s", domain.ErrAlreadyExists, kind, newPath)
		}

		if kind == domain.KindFolder {
			rec.Folder.Path = newPath
			rec.Folder.UpdatedAt = time.Now().UTC()
		} else {
			rec.File.Path = newPath
			rec.File.UpdatedAt = time.Now().UTC()
		}
		if err := txn.Delete(keyPath(node.NodeOwner(), oldPath)); err != nil {
			return err
		}
		if err := txn.Set(keyPath(node.NodeOwner(), newPath), []byte(id.String())); err != nil {
			return err
		}
		return setJSON(txn, keyNode(id), rec)
	})
}

func (s *Store) UpdateParent(ctx context.Context, kind domain.NodeKind, id uuid.UUID, parentID *uuid.UUID) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		rec, err := loadKind(txn, kind, id)
		if err != nil {
			return err
		}
		if parentID != nil {
			if _, err := loadKind(txn, domain.KindFolder, *parentID); err != nil {
				return err
			}
		}
		node := rec.node()
		if err := txn.Delete(keyChild(node.NodeOwner(), node.NodeParent(), id)); err != nil {
			return err
		}

		now := time.Now().UTC()
		if kind == domain.KindFolder {
			rec.Folder.ParentID = parentID
			rec.Folder.UpdatedAt = now
		} else {
			rec.File.FolderID = parentID
			rec.File.UpdatedAt = now
		}
		if err := txn.Set(keyChild(node.NodeOwner(), parentID, id), nil); err != nil {
			return err
		}
		return setJSON(txn, keyNode(id), rec)
	})
}

func (s *Store) Rename(ctx context.Context, kind domain.NodeKind, id uuid.UUID, newName string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		rec, err := loadKind(txn, kind, id)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if kind == domain.KindFolder {
			rec.Folder.Name = newName
			rec.Folder.UpdatedAt = now
		} else {
			rec.File.Filename = newName
			rec.File.OriginalName = newName
			rec.File.UpdatedAt = now
		}
		return setJSON(txn, keyNode(id), rec)
	})
}

func (s *Store) DeleteNode(ctx context.Context, kind domain.NodeKind, id uuid.UUID) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		rec, err := loadKind(txn, kind, id)
		if err != nil {
			return err
		}
		node := rec.node()
		owner := node.NodeOwner()
		for _, key := range [][]byte{
			keyPath(owner, node.NodePath()),
			keyChild(owner, node.NodeParent(), id),
			keyOwned(owner, id),
			keyNode(id),
		} {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("failed to delete %s: %w", kind, err)
			}
		}
		return nil
	})
}

func (s *Store) SumFileSizes(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var total int64
	err := s.view(ctx, func(txn *badger.Txn) error {
		ids, err := scanIDs(txn, keyOwnedPrefix(ownerID))
		if err != nil {
			return err
		}
		for _, id := range ids {
			rec, err := loadNode(txn, id)
			if err != nil {
				return err
			}
			if rec.Kind == domain.KindFile {
				total += rec.File.SizeBytes
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to sum file sizes: %w", err)
	}
	return total, nil
}
