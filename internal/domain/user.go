package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// DefaultDiskSpace - квота нового пользователя, 1GB
const DefaultDiskSpace int64 = 1 << 30

type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Role      Role      `json:"role" db:"role"`
	DiskSpace int64     `json:"disk_space" db:"disk_space"`
	UsedSpace int64     `json:"used_space" db:"used_space"`
	RootPath  string    `json:"root_path" db:"root_path"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Principal - уже аутентифицированный пользователь, от имени которого выполняется операция
type Principal struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	DiskSpace int64     `json:"disk_space"`
	UsedSpace int64     `json:"used_space"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

func (u *User) Principal() Principal {
	return Principal{
		ID:        u.ID,
		Username:  u.Username,
		Role:      u.Role,
		DiskSpace: u.DiskSpace,
		UsedSpace: u.UsedSpace,
	}
}
