package domain

import (
	"time"

	"github.com/google/uuid"
)

type Folder struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	OwnerID   uuid.UUID  `json:"owner_id" db:"owner_id"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty" db:"parent_id"`
	Path      string     `json:"path" db:"path"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

func (f *Folder) NodeID() uuid.UUID      { return f.ID }
func (f *Folder) NodeKind() NodeKind     { return KindFolder }
func (f *Folder) NodeName() string       { return f.Name }
func (f *Folder) NodePath() string       { return f.Path }
func (f *Folder) NodeOwner() uuid.UUID   { return f.OwnerID }
func (f *Folder) NodeParent() *uuid.UUID { return f.ParentID }

// Listing - прямые потомки папки (или корня пользователя), без рекурсии
type Listing struct {
	Folder  *Folder  `json:"folder,omitempty"`
	Folders []Folder `json:"folders"`
	Files   []File   `json:"files"`
}

// IsEmpty сообщает, что у папки нет ни подпапок, ни файлов
func (l *Listing) IsEmpty() bool {
	return len(l.Folders) == 0 && len(l.Files) == 0
}
