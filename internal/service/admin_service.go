package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storagetree/internal/domain"
	"storagetree/internal/paths"
	"storagetree/internal/repository"
	"storagetree/internal/storage"
)

type CreateUserRequest struct {
	Username  string      `json:"username" validate:"required,max=255"`
	Role      domain.Role `json:"role" validate:"omitempty,oneof=user admin"`
	DiskSpace int64       `json:"disk_space" validate:"gte=0"`
}

var validate = validator.New()

// AdminService - заведение пользователей и просмотр списка
type AdminService struct {
	store            repository.Store
	fs               storage.Filesystem
	defaultDiskSpace int64
	logger           *zap.Logger
}

func NewAdminService(store repository.Store, fs storage.Filesystem, defaultDiskSpace int64, logger *zap.Logger) *AdminService {
	if defaultDiskSpace <= 0 {
		defaultDiskSpace = domain.DefaultDiskSpace
	}
	return &AdminService{
		store:            store,
		fs:               fs,
		defaultDiskSpace: defaultDiskSpace,
		logger:           logger,
	}
}

func (s *AdminService) CreateUser(ctx context.Context, actor domain.Principal, req CreateUserRequest) (*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can create users", domain.ErrForbidden)
	}
	return s.Provision(ctx, req)
}

// Provision создает корневой каталог пользователя и его запись.
// Вызывается без проверки прав только при начальной настройке (cmd/seed).
func (s *AdminService) Provision(ctx context.Context, req CreateUserRequest) (*domain.User, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	root, err := paths.UserRoot(req.Username)
	if err != nil {
		return nil, err
	}
	role := req.Role
	if role == "" {
		role = domain.RoleUser
	}
	diskSpace := req.DiskSpace
	if diskSpace == 0 {
		diskSpace = s.defaultDiskSpace
	}

	exists, err := s.fs.Exists(ctx, root)
	if err != nil {
		return nil, physicalError(err)
	}
	if exists {
		return nil, fmt.Errorf("%w: storage for %q already exists", domain.ErrConflict, req.Username)
	}
	if err := s.fs.CreateDir(ctx, root); err != nil {
		return nil, physicalError(err)
	}

	ctx = context.WithoutCancel(ctx)
	user := &domain.User{
		ID:        uuid.New(),
		Username:  req.Username,
		Role:      role,
		DiskSpace: diskSpace,
		RootPath:  root,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if rmErr := s.fs.RemoveDir(ctx, root); rmErr != nil {
			s.logger.Error("failed to remove user root after failed provisioning",
				zap.String("root_path", root), zap.Error(rmErr))
		}
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: create user %s: %v", domain.ErrInternal, req.Username, err)
	}

	s.logger.Info("user provisioned",
		zap.Stringer("user_id", user.ID),
		zap.String("username", user.Username),
		zap.String("role", string(user.Role)),
	)
	return user, nil
}

func (s *AdminService) ListUsers(ctx context.Context, actor domain.Principal) ([]domain.User, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can list users", domain.ErrForbidden)
	}
	return s.store.ListUsers(ctx)
}
