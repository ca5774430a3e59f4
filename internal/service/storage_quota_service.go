package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storagetree/internal/domain"
	"storagetree/internal/repository"
)

// StorageQuotaService ведет учет занятого места. Резерв только проверяет,
// изменение счетчика происходит в Commit внутри транзакции метаданных,
// уже после успешного физического шага.
type StorageQuotaService struct {
	store  repository.Store
	logger *zap.Logger
}

func NewStorageQuotaService(store repository.Store, logger *zap.Logger) *StorageQuotaService {
	return &StorageQuotaService{
		store:  store,
		logger: logger,
	}
}

// Reserve проверяет, что delta байт поместится в квоту. Ничего не меняет.
func (s *StorageQuotaService) Reserve(ctx context.Context, userID uuid.UUID, delta int64) error {
	if delta <= 0 {
		return nil
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.UsedSpace+delta > user.DiskSpace {
		return fmt.Errorf("%w: need %d bytes, available %d",
			domain.ErrInsufficientQuota, delta, user.DiskSpace-user.UsedSpace)
	}
	return nil
}

// Commit применяет дельту через переданное хранилище (обычно транзакцию вызывающего)
func (s *StorageQuotaService) Commit(ctx context.Context, users repository.UserStore, userID uuid.UUID, delta int64) (*domain.User, error) {
	if delta == 0 {
		return users.GetUser(ctx, userID)
	}
	return users.AddUsedSpace(ctx, userID, delta)
}

func (s *StorageQuotaService) GetQuotaInfo(ctx context.Context, userID uuid.UUID) (*domain.QuotaInfo, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}
	return domain.NewQuotaInfo(user), nil
}

func (s *StorageQuotaService) SetLimit(ctx context.Context, actor domain.Principal, userID uuid.UUID, newLimit int64) (*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can change disk space", domain.ErrForbidden)
	}
	if newLimit < 0 {
		return nil, fmt.Errorf("%w: disk space cannot be negative", domain.ErrInvalidArgument)
	}

	user, err := s.store.SetDiskSpace(ctx, userID, newLimit)
	if err != nil {
		return nil, err
	}
	s.logger.Info("disk space updated",
		zap.Stringer("user_id", userID),
		zap.Stringer("actor_id", actor.ID),
		zap.Int64("disk_space", newLimit),
	)
	return user, nil
}

// Recalculate пересчитывает занятое место как сумму размеров файлов пользователя
func (s *StorageQuotaService) Recalculate(ctx context.Context, actor domain.Principal, userID uuid.UUID) (*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can recalculate usage", domain.ErrForbidden)
	}

	var user *domain.User
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}
		total, err := tx.SumFileSizes(ctx, userID)
		if err != nil {
			return err
		}
		user, err = tx.SetUsedSpace(ctx, userID, total)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("used space recalculated",
		zap.Stringer("user_id", userID),
		zap.Int64("used_space", user.UsedSpace),
	)
	return user, nil
}
