package kvstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"storagetree/internal/domain"
)

func loadUser(txn *badger.Txn, id uuid.UUID) (*domain.User, error) {
	var user domain.User
	if err := getJSON(txn, keyUser(id), &user); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user *domain.User
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		user, err = loadUser(txn, id)
		return err
	})
	return user, err
}

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	return s.update(ctx, func(txn *badger.Txn) error {
		if ok, err := exists(txn, keyUsername(user.Username)); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: user %s", domain.ErrAlreadyExists, user.Username)
		}
		if ok, err := exists(txn, keyUser(user.ID)); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: user %s", domain.ErrAlreadyExists, user.ID)
		}
		if err := setJSON(txn, keyUser(user.ID), user); err != nil {
			return err
		}
		return txn.Set(keyUsername(user.Username), []byte(user.ID.String()))
	})
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	users := []domain.User{}
	err := s.view(ctx, func(txn *badger.Txn) error {
		ids, err := scanIDs(txn, []byte(prefixUser))
		if err != nil {
			return err
		}
		for _, id := range ids {
			user, err := loadUser(txn, id)
			if err != nil {
				return err
			}
			users = append(users, *user)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	slices.SortFunc(users, func(a, b domain.User) int { return strings.Compare(a.Username, b.Username) })
	return users, nil
}

// AddUsedSpace читает и пишет счетчик в одной транзакции; параллельный
// писатель получит badger.ErrConflict и повторит попытку с новым значением.
func (s *Store) AddUsedSpace(ctx context.Context, id uuid.UUID, delta int64) (*domain.User, error) {
	return s.modifyUser(ctx, id, func(user *domain.User) error {
		if delta > 0 && user.UsedSpace+delta > user.DiskSpace {
			return fmt.Errorf("%w: need %d bytes, available %d",
				domain.ErrInsufficientQuota, delta, user.DiskSpace-user.UsedSpace)
		}
		user.UsedSpace = max(0, user.UsedSpace+delta)
		return nil
	})
}

func (s *Store) SetDiskSpace(ctx context.Context, id uuid.UUID, limit int64) (*domain.User, error) {
	return s.modifyUser(ctx, id, func(user *domain.User) error {
		if limit < user.UsedSpace {
			return fmt.Errorf("%w: used %d, requested %d", domain.ErrBelowUsedSpace, user.UsedSpace, limit)
		}
		user.DiskSpace = limit
		return nil
	})
}

func (s *Store) SetUsedSpace(ctx context.Context, id uuid.UUID, used int64) (*domain.User, error) {
	return s.modifyUser(ctx, id, func(user *domain.User) error {
		user.UsedSpace = max(0, used)
		return nil
	})
}

func (s *Store) modifyUser(ctx context.Context, id uuid.UUID, fn func(user *domain.User) error) (*domain.User, error) {
	var result *domain.User
	err := s.update(ctx, func(txn *badger.Txn) error {
		user, err := loadUser(txn, id)
		if err != nil {
			return err
		}
		if err := fn(user); err != nil {
			return err
		}
		user.UpdatedAt = time.Now().UTC()
		if err := setJSON(txn, keyUser(id), user); err != nil {
			return err
		}
		result = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
